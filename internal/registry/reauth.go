package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/standardbeagle/mcpm/internal/auth"
	"github.com/standardbeagle/mcpm/internal/config"
)

// FlowRunner runs an OAuth authorization flow to completion and returns the
// raw tokens. The registry persists them; the runner never touches storage.
type FlowRunner interface {
	Run(ctx context.Context, req auth.FlowRequest) (*auth.FlowResult, error)
}

// EndpointDiscoverer resolves a server's OAuth endpoints.
type EndpointDiscoverer interface {
	Discover(ctx context.Context, serverURL, metadataHint string) (*auth.Endpoints, error)
}

// NewBrowserFlow returns the production FlowRunner: loopback capture plus a
// local browser launch. Events may be nil.
func NewBrowserFlow(events auth.Events) FlowRunner {
	return &browserFlow{events: events}
}

type browserFlow struct {
	events auth.Events
}

func (b *browserFlow) Run(ctx context.Context, req auth.FlowRequest) (*auth.FlowResult, error) {
	flow := &auth.Flow{
		Events:  b.events,
		Browser: auth.OpenBrowser,
	}
	return flow.Run(ctx, req)
}

// ReauthResult reports what a reauthorization attempt did.
type ReauthResult struct {
	// Required is false when the probe connection already succeeded and no
	// flow ran.
	Required     bool
	AuthType     string
	CredentialID string
	Reconnected  bool
}

// Reauthorize refreshes a server's stored auth. It probes the connection
// first and runs a flow only when the probe fails for an auth reason, so a
// server that still works is never dragged through a browser round trip.
func (r *Registry) Reauthorize(ctx context.Context, name string) (*ReauthResult, error) {
	entry, err := r.lookupEntry(name)
	if err != nil {
		return nil, err
	}
	cfg := entry.Config

	probeErr := r.probe(ctx, name, cfg)
	if probeErr == nil {
		return &ReauthResult{Required: false}, nil
	}

	authType, hint, err := r.classifyProbe(name, cfg, probeErr)
	if err != nil {
		return nil, err
	}

	// Static credentials cannot be minted here; point the user at the
	// manual path.
	if authType != config.AuthTypeOAuth {
		return nil, &auth.AuthRequiredError{Server: name, AuthType: authType}
	}

	credID, err := r.runOAuth(ctx, name, cfg, hint)
	if err != nil {
		return nil, err
	}

	r.persistCredentialID(name, credID)

	result := &ReauthResult{
		Required:     true,
		AuthType:     config.AuthTypeOAuth,
		CredentialID: credID,
	}

	desired, err := r.store.DesiredSet()
	if err != nil {
		return result, nil
	}
	if entry, ok := desired[name]; ok {
		if err := r.connectOne(ctx, entry); err != nil {
			r.logger.Warn("reconnect after reauthorization failed", "server", name, "error", err)
			return result, nil
		}
		result.Reconnected = true
	}
	return result, nil
}

func (r *Registry) probe(ctx context.Context, name string, cfg config.ServerConfig) error {
	_, err := r.TestConnection(ctx, name, cfg)
	return err
}

// classifyProbe decides whether a probe failure calls for new credentials,
// and of which type. Non-auth failures pass through untouched so the caller
// sees the real connection error.
func (r *Registry) classifyProbe(name string, cfg config.ServerConfig, probeErr error) (authType, metadataHint string, err error) {
	var missing *auth.MissingCredentialError
	if errors.As(probeErr, &missing) {
		// Auth is configured but the credential is gone. The config says
		// which kind to mint.
		if cfg.Auth != nil && cfg.Auth.Type != "" {
			return cfg.Auth.Type, "", nil
		}
		return config.AuthTypeOAuth, "", nil
	}

	c := auth.Analyze(probeErr)
	if !c.RequiresAuth {
		return "", "", probeErr
	}
	if cfg.Auth != nil && cfg.Auth.Type != "" {
		return cfg.Auth.Type, c.ResourceMetadataURL, nil
	}
	return c.AuthType, c.ResourceMetadataURL, nil
}

// runOAuth discovers endpoints, ensures a client id, runs the flow, and
// stores the resulting credential. It returns the new credential's ID.
func (r *Registry) runOAuth(ctx context.Context, name string, cfg config.ServerConfig, metadataHint string) (string, error) {
	if cfg.URL == "" {
		return "", fmt.Errorf("server %s has no URL to authorize against", name)
	}

	endpoints, err := r.discovery().Discover(ctx, cfg.URL, metadataHint)
	if err != nil {
		return "", err
	}

	port := auth.DefaultCallbackPort
	clientID := ""
	clientSecret := ""
	if cfg.OAuth != nil {
		if cfg.OAuth.CallbackPort > 0 {
			port = cfg.OAuth.CallbackPort
		}
		clientID = cfg.OAuth.ClientID
	}

	if clientID == "" && endpoints.RegistrationURL != "" {
		redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
		clientID, clientSecret, err = r.register(ctx, endpoints.RegistrationURL, redirectURI)
		if err != nil {
			return "", fmt.Errorf("registering OAuth client for %s: %w", name, err)
		}
		r.logger.Info("registered OAuth client", "server", name, "client_id", clientID)
	}

	result, err := r.flow.Run(ctx, auth.FlowRequest{
		ServerName:       name,
		Resource:         cfg.URL,
		AuthorizationURL: endpoints.AuthorizationURL,
		TokenURL:         endpoints.TokenURL,
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		Scopes:           endpoints.Scopes,
		CallbackPort:     port,
	})
	if err != nil {
		return "", fmt.Errorf("authorizing %s: %w", name, err)
	}

	cred := &auth.Credential{
		ID:            auth.NewCredentialID(),
		ServerName:    name,
		ServerURL:     cfg.URL,
		ClientID:      result.ClientID,
		ClientSecret:  clientSecret,
		AccessToken:   result.Token.AccessToken,
		RefreshToken:  result.Token.RefreshToken,
		TokenType:     result.Token.TokenType,
		ExpiresAt:     result.Token.Expiry,
		Scope:         result.Scope,
		TokenEndpoint: endpoints.TokenURL,
	}
	if err := r.creds.Set(cred); err != nil {
		return "", fmt.Errorf("storing credential for %s: %w", name, err)
	}
	return cred.ID, nil
}

// persistCredentialID pins the new credential in the server's config so
// later connections resolve it directly. Discovered servers have no
// writable config; their credentials resolve by server name instead.
func (r *Registry) persistCredentialID(name, credID string) {
	cfg, scope, err := r.store.Find(name)
	if err != nil {
		return
	}
	cfg.Auth = &config.AuthConfig{Type: config.AuthTypeOAuth, CredentialID: credID}
	if err := r.store.Update(scope, name, cfg); err != nil {
		r.logger.Warn("could not pin credential in config", "server", name, "error", err)
	}
}

func (r *Registry) discovery() EndpointDiscoverer {
	if r.discoverer != nil {
		return r.discoverer
	}
	return auth.NewDiscoverer(nil, r.logger)
}

func (r *Registry) register(ctx context.Context, registrationURL, redirectURI string) (string, string, error) {
	if r.registerClient != nil {
		return r.registerClient(ctx, registrationURL, redirectURI)
	}
	return auth.RegisterClient(ctx, registrationURL, redirectURI)
}

// lookupEntry finds a server's config whether owned, discovered, or
// currently disabled. Disabled servers can still reauthorize; the new
// credential takes effect when they are enabled again.
func (r *Registry) lookupEntry(name string) (config.Entry, error) {
	desired, err := r.store.DesiredSet()
	if err != nil {
		return config.Entry{}, fmt.Errorf("reading server configs: %w", err)
	}
	if e, ok := desired[name]; ok {
		return e, nil
	}
	cfg, scope, err := r.store.Find(name)
	if err == nil {
		return config.Entry{Name: name, Config: cfg, Origin: config.Origin{Scope: scope}}, nil
	}
	for _, d := range r.store.Discovered() {
		if d.Name == name {
			return config.Entry{Name: name, Config: d.Config, Origin: d.Source}, nil
		}
	}
	return config.Entry{}, err
}
