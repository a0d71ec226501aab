package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/oauthex"

	"github.com/standardbeagle/mcpm/internal/logging"
)

// Endpoints holds the OAuth endpoints discovered for a server.
type Endpoints struct {
	AuthorizationURL string
	TokenURL         string
	RegistrationURL  string   // empty when the server does not offer dynamic registration
	Scopes           []string // scopes the resource advertises
}

var errMetadataNotFound = errors.New("metadata not found")

// Discoverer locates a server's OAuth endpoints via the well-known metadata
// documents, with a fallback to conventional paths for servers that publish
// none.
type Discoverer struct {
	HTTPClient *http.Client

	logger logging.Logger
}

func NewDiscoverer(client *http.Client, logger logging.Logger) *Discoverer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Discoverer{HTTPClient: client, logger: logger}
}

// Discover resolves serverURL's OAuth endpoints. metadataHint, when set, is
// the protected-resource metadata URL taken from a WWW-Authenticate
// challenge and skips the first probe. A server with no metadata at all
// falls back to the conventional /authorize, /token and /register paths;
// only unreachable or malformed metadata is a discovery failure.
func (d *Discoverer) Discover(ctx context.Context, serverURL, metadataHint string) (*Endpoints, error) {
	origin, err := originOf(serverURL)
	if err != nil {
		return nil, &DiscoveryFailedError{ServerURL: serverURL, Err: err}
	}

	prm := d.protectedResourceMetadata(ctx, serverURL, metadataHint)

	authBases := prm.AuthorizationServers
	if len(authBases) == 0 {
		authBases = []string{origin}
	}

	var lastErr error
	sawNotFound := false
	for _, base := range authBases {
		asm, err := d.fetchAuthServerMetadata(ctx, base)
		if err != nil {
			if errors.Is(err, errMetadataNotFound) {
				sawNotFound = true
			} else {
				lastErr = err
			}
			continue
		}
		if asm.AuthorizationEndpoint == "" || asm.TokenEndpoint == "" {
			lastErr = fmt.Errorf("authorization server metadata for %s lacks authorization or token endpoint", base)
			continue
		}

		scopes := prm.ScopesSupported
		if len(scopes) == 0 {
			scopes = asm.ScopesSupported
		}
		return &Endpoints{
			AuthorizationURL: asm.AuthorizationEndpoint,
			TokenURL:         asm.TokenEndpoint,
			RegistrationURL:  asm.RegistrationEndpoint,
			Scopes:           scopes,
		}, nil
	}

	if sawNotFound {
		// The server exists but publishes no metadata. Assume the
		// conventional endpoint layout rather than giving up.
		d.logger.Debug("no auth server metadata, assuming default endpoints", "base", authBases[0])
		ep := DefaultEndpoints(authBases[0])
		ep.Scopes = prm.ScopesSupported
		return ep, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no authorization server metadata found")
	}
	return nil, &DiscoveryFailedError{ServerURL: serverURL, Err: lastErr}
}

// resourceMetadata is the protected-resource metadata document (RFC 9728).
type resourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported"`
}

// protectedResourceMetadata fetches the resource's metadata. Failure is
// fine; the document is an optimization, not a requirement.
func (d *Discoverer) protectedResourceMetadata(ctx context.Context, serverURL, hint string) resourceMetadata {
	if hint != "" {
		var prm resourceMetadata
		if err := d.getJSON(ctx, hint, &prm); err != nil {
			d.logger.Debug("hinted resource metadata unavailable", "url", hint, "error", err)
			return resourceMetadata{}
		}
		return prm
	}

	prm, err := oauthex.GetProtectedResourceMetadataFromID(ctx, serverURL, nil)
	if err != nil || prm == nil {
		d.logger.Debug("no protected resource metadata", "server", serverURL, "error", err)
		return resourceMetadata{}
	}
	return resourceMetadata{
		Resource:             prm.Resource,
		AuthorizationServers: prm.AuthorizationServers,
		ScopesSupported:      prm.ScopesSupported,
	}
}

// authServerMetadata is the authorization-server metadata document
// (RFC 8414).
type authServerMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint"`
	ScopesSupported       []string `json:"scopes_supported"`
}

func (d *Discoverer) fetchAuthServerMetadata(ctx context.Context, base string) (*authServerMetadata, error) {
	wellKnown, err := wellKnownAuthServerURL(base)
	if err != nil {
		return nil, err
	}
	var asm authServerMetadata
	if err := d.getJSON(ctx, wellKnown, &asm); err != nil {
		return nil, err
	}
	return &asm, nil
}

func (d *Discoverer) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", rawURL, errMetadataNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: invalid metadata: %w", rawURL, err)
	}
	return nil
}

// wellKnownAuthServerURL builds the RFC 8414 metadata URL for an issuer,
// inserting the well-known segment between host and path.
func wellKnownAuthServerURL(issuer string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("invalid authorization server URL %q: %w", issuer, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid authorization server URL %q", issuer)
	}
	u.Path = "/.well-known/oauth-authorization-server" + strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// DefaultEndpoints returns the conventional endpoint layout under base.
func DefaultEndpoints(base string) *Endpoints {
	base = strings.TrimSuffix(base, "/")
	return &Endpoints{
		AuthorizationURL: base + "/authorize",
		TokenURL:         base + "/token",
		RegistrationURL:  base + "/register",
	}
}

// RegisterClient performs dynamic client registration (RFC 7591) at
// registrationURL and returns the issued client credentials.
func RegisterClient(ctx context.Context, registrationURL, redirectURI string) (clientID, clientSecret string, err error) {
	meta := &oauthex.ClientRegistrationMetadata{
		RedirectURIs:            []string{redirectURI},
		ClientName:              "mcpm",
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
	}
	resp, err := oauthex.RegisterClient(ctx, registrationURL, meta, nil)
	if err != nil {
		return "", "", fmt.Errorf("dynamic client registration failed: %w", err)
	}
	return resp.ClientID, resp.ClientSecret, nil
}

func originOf(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("server URL %q is not http or https", serverURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL %q has no host", serverURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
