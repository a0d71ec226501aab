package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metadataServer serves canned JSON documents by path; everything else 404s.
func metadataServer(t *testing.T, docs map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverer_Discover_WithHint(t *testing.T) {
	var srv *httptest.Server
	docs := map[string]any{}
	srv = metadataServer(t, docs)

	docs["/.well-known/oauth-protected-resource"] = map[string]any{
		"resource":              srv.URL,
		"authorization_servers": []string{srv.URL + "/tenant1"},
		"scopes_supported":      []string{"mcp.read", "mcp.write"},
	}
	docs["/.well-known/oauth-authorization-server/tenant1"] = map[string]any{
		"issuer":                 srv.URL + "/tenant1",
		"authorization_endpoint": srv.URL + "/tenant1/authorize",
		"token_endpoint":         srv.URL + "/tenant1/token",
		"registration_endpoint":  srv.URL + "/tenant1/register",
	}

	d := NewDiscoverer(nil, nil)
	ep, err := d.Discover(context.Background(), srv.URL, srv.URL+"/.well-known/oauth-protected-resource")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/tenant1/authorize", ep.AuthorizationURL)
	assert.Equal(t, srv.URL+"/tenant1/token", ep.TokenURL)
	assert.Equal(t, srv.URL+"/tenant1/register", ep.RegistrationURL)
	assert.Equal(t, []string{"mcp.read", "mcp.write"}, ep.Scopes)
}

func TestDiscoverer_Discover_HintUnavailableFallsBackToOrigin(t *testing.T) {
	var srv *httptest.Server
	docs := map[string]any{}
	srv = metadataServer(t, docs)

	// No protected-resource document; the server origin doubles as the
	// authorization server.
	docs["/.well-known/oauth-authorization-server"] = map[string]any{
		"issuer":                 srv.URL,
		"authorization_endpoint": srv.URL + "/authorize",
		"token_endpoint":         srv.URL + "/token",
		"scopes_supported":       []string{"everything"},
	}

	d := NewDiscoverer(nil, nil)
	ep, err := d.Discover(context.Background(), srv.URL+"/mcp", srv.URL+"/.well-known/oauth-protected-resource")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/authorize", ep.AuthorizationURL)
	assert.Equal(t, srv.URL+"/token", ep.TokenURL)
	assert.Empty(t, ep.RegistrationURL)
	assert.Equal(t, []string{"everything"}, ep.Scopes, "auth server scopes apply when the resource advertises none")
}

func TestDiscoverer_Discover_NoMetadataAssumesDefaults(t *testing.T) {
	srv := metadataServer(t, map[string]any{})

	d := NewDiscoverer(nil, nil)
	ep, err := d.Discover(context.Background(), srv.URL+"/mcp", srv.URL+"/.well-known/oauth-protected-resource")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/authorize", ep.AuthorizationURL)
	assert.Equal(t, srv.URL+"/token", ep.TokenURL)
	assert.Equal(t, srv.URL+"/register", ep.RegistrationURL)
	assert.Empty(t, ep.Scopes)
}

func TestDiscoverer_Discover_SecondAuthServerWins(t *testing.T) {
	var srv *httptest.Server
	docs := map[string]any{}
	broken := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/oauth-authorization-server/down" {
			broken++
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		doc, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	docs["/.well-known/oauth-protected-resource"] = map[string]any{
		"authorization_servers": []string{srv.URL + "/down", srv.URL + "/up"},
	}
	docs["/.well-known/oauth-authorization-server/up"] = map[string]any{
		"authorization_endpoint": srv.URL + "/up/authorize",
		"token_endpoint":         srv.URL + "/up/token",
	}

	d := NewDiscoverer(nil, nil)
	ep, err := d.Discover(context.Background(), srv.URL, srv.URL+"/.well-known/oauth-protected-resource")
	require.NoError(t, err)

	assert.Equal(t, 1, broken, "the failing server must have been probed first")
	assert.Equal(t, srv.URL+"/up/authorize", ep.AuthorizationURL)
}

func TestDiscoverer_Discover_MetadataLacksEndpoints(t *testing.T) {
	var srv *httptest.Server
	docs := map[string]any{}
	srv = metadataServer(t, docs)

	docs["/.well-known/oauth-protected-resource"] = map[string]any{
		"authorization_servers": []string{srv.URL},
	}
	// Metadata exists but is useless.
	docs["/.well-known/oauth-authorization-server"] = map[string]any{
		"issuer": srv.URL,
	}

	d := NewDiscoverer(nil, nil)
	_, err := d.Discover(context.Background(), srv.URL, srv.URL+"/.well-known/oauth-protected-resource")
	require.Error(t, err)

	var dfe *DiscoveryFailedError
	require.ErrorAs(t, err, &dfe)
	assert.Contains(t, err.Error(), "lacks")
}

func TestDiscoverer_Discover_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := srv.URL
	srv.Close()

	d := NewDiscoverer(nil, nil)
	_, err := d.Discover(context.Background(), serverURL, serverURL+"/.well-known/oauth-protected-resource")
	require.Error(t, err)

	var dfe *DiscoveryFailedError
	require.ErrorAs(t, err, &dfe)
	assert.Equal(t, serverURL, dfe.ServerURL)
}

func TestDiscoverer_Discover_InvalidServerURL(t *testing.T) {
	d := NewDiscoverer(nil, nil)
	_, err := d.Discover(context.Background(), "mcp.example.com/no-scheme", "")
	require.Error(t, err)

	var dfe *DiscoveryFailedError
	require.ErrorAs(t, err, &dfe)
	assert.Contains(t, err.Error(), "mcp.example.com/no-scheme")
}

func TestDiscoverer_Discover_CorruptMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{truncated")
	}))
	t.Cleanup(srv.Close)

	d := NewDiscoverer(nil, nil)
	_, err := d.Discover(context.Background(), srv.URL, srv.URL+"/.well-known/oauth-protected-resource")
	require.Error(t, err)

	var dfe *DiscoveryFailedError
	require.ErrorAs(t, err, &dfe)
}

// =============================================================================
// URL Helper Tests
// =============================================================================

func TestWellKnownAuthServerURL(t *testing.T) {
	tests := []struct {
		name   string
		issuer string
		want   string
	}{
		{
			"bare origin",
			"https://auth.example.com",
			"https://auth.example.com/.well-known/oauth-authorization-server",
		},
		{
			"issuer with path",
			"https://auth.example.com/tenant1",
			"https://auth.example.com/.well-known/oauth-authorization-server/tenant1",
		},
		{
			"trailing slash",
			"https://auth.example.com/",
			"https://auth.example.com/.well-known/oauth-authorization-server",
		},
		{
			"query dropped",
			"https://auth.example.com/t?x=1",
			"https://auth.example.com/.well-known/oauth-authorization-server/t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wellKnownAuthServerURL(tt.issuer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWellKnownAuthServerURL_Invalid(t *testing.T) {
	_, err := wellKnownAuthServerURL("auth.example.com")
	assert.Error(t, err)
}

func TestDefaultEndpoints(t *testing.T) {
	ep := DefaultEndpoints("https://auth.example.com/")
	assert.Equal(t, "https://auth.example.com/authorize", ep.AuthorizationURL)
	assert.Equal(t, "https://auth.example.com/token", ep.TokenURL)
	assert.Equal(t, "https://auth.example.com/register", ep.RegistrationURL)
}

func TestOriginOf(t *testing.T) {
	origin, err := originOf("https://mcp.example.com:8443/api/mcp?q=1")
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.example.com:8443", origin)

	_, err = originOf("ftp://mcp.example.com")
	assert.Error(t, err)

	_, err = originOf("https://")
	assert.Error(t, err)
}

func TestDiscoveryFailedError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("dial tcp: connection refused")
	err := &DiscoveryFailedError{ServerURL: "https://x.example", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "https://x.example")
}
