package auth

import (
	"fmt"

	"github.com/standardbeagle/mcpm/internal/config"
	"github.com/standardbeagle/mcpm/internal/logging"
)

// Resolver injects stored auth material into server configs before dialing.
type Resolver struct {
	store  CredentialStore
	logger logging.Logger
}

// NewResolver creates a resolver backed by the given credential store.
func NewResolver(store CredentialStore, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{store: store, logger: logger}
}

// Prepare returns a config ready to dial. Header injection happens on a deep
// copy; the input config is never modified and storage is never written. The
// resolved headers live for exactly one connection attempt.
//
// stdio configs pass through untouched: they have no header channel to
// carry auth, so an auth block on a stdio server is inert.
//
// A config without an auth block still gets a stored credential for its
// server name when one exists. Discovered servers depend on this: their
// configs are read-only and can never carry a credential ID.
func (r *Resolver) Prepare(name string, cfg config.ServerConfig) (config.ServerConfig, error) {
	if cfg.Type == config.TransportStdio {
		return cfg, nil
	}
	if cfg.Auth == nil {
		return r.prepareUnpinned(name, cfg)
	}

	cred, err := r.lookup(name, cfg.Auth.CredentialID)
	if err != nil {
		return config.ServerConfig{}, fmt.Errorf("resolving credential for %s: %w", name, err)
	}
	if cred == nil {
		return config.ServerConfig{}, &MissingCredentialError{Server: name, CredentialID: cfg.Auth.CredentialID}
	}

	resolved := cfg.Clone()
	if resolved.Headers == nil {
		resolved.Headers = make(map[string]string, 1)
	}

	switch cfg.Auth.Type {
	case config.AuthTypeAPIKey:
		resolved.Headers["X-Api-Key"] = cred.AccessToken
	case config.AuthTypeOAuth:
		tokenType := cred.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		resolved.Headers["Authorization"] = tokenType + " " + cred.AccessToken
	default:
		return config.ServerConfig{}, fmt.Errorf("unknown auth type for %s: %q", name, cfg.Auth.Type)
	}

	if cred.IsExpired() {
		r.logger.Debug("stored credential is expired or about to expire", "server", name, "credential", cred.ID)
	}

	return resolved, nil
}

// prepareUnpinned injects a credential stored under the server's name, or
// passes the config through when there is none. Absence is not an error
// here: a server without an auth block usually needs no auth at all.
func (r *Resolver) prepareUnpinned(name string, cfg config.ServerConfig) (config.ServerConfig, error) {
	cred, err := r.store.FindByServer(name)
	if err != nil {
		r.logger.Warn("credential store lookup failed", "server", name, "error", err)
		return cfg, nil
	}
	if cred == nil {
		return cfg, nil
	}

	resolved := cfg.Clone()
	if resolved.Headers == nil {
		resolved.Headers = make(map[string]string, 1)
	}
	tokenType := cred.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	resolved.Headers["Authorization"] = tokenType + " " + cred.AccessToken
	return resolved, nil
}

// lookup finds the credential for a server. A configured credential ID is
// authoritative; without one the newest credential for the server name wins.
func (r *Resolver) lookup(name, credentialID string) (*Credential, error) {
	if credentialID != "" {
		return r.store.Get(credentialID)
	}
	return r.store.FindByServer(name)
}
