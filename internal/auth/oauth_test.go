package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEvents captures everything the flow reports.
type recordingEvents struct {
	mu       sync.Mutex
	authURL  string
	progress []string
}

func (r *recordingEvents) AuthorizationReady(url, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authURL = url
}

func (r *recordingEvents) Progress(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, msg)
}

func (r *recordingEvents) AuthURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authURL
}

func (r *recordingEvents) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.progress...)
}

// stubSource is a CodeSource driven by test closures.
type stubSource struct {
	redirect string
	wait     func(ctx context.Context) (AuthCode, error)
	closed   bool
}

func (s *stubSource) Start(ctx context.Context) (string, error) {
	if s.redirect == "" {
		s.redirect = "http://127.0.0.1:9999/callback"
	}
	return s.redirect, nil
}

func (s *stubSource) Wait(ctx context.Context) (AuthCode, error) {
	return s.wait(ctx)
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

// echoState pulls the state parameter out of the recorded authorization URL,
// the way a real browser redirect would carry it back.
func echoState(t *testing.T, rec *recordingEvents) string {
	t.Helper()
	u, err := url.Parse(rec.AuthURL())
	require.NoError(t, err)
	return u.Query().Get("state")
}

// mockTokenServer returns tokens and records the grant it received.
func mockTokenServer(t *testing.T, response string, status int) (*httptest.Server, *url.Values) {
	t.Helper()
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

// =============================================================================
// Flow.Run Tests
// =============================================================================

func TestFlow_Run_Success(t *testing.T) {
	srv, grant := mockTokenServer(t,
		`{"access_token":"at-123","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-456","scope":"read write"}`,
		http.StatusOK)

	rec := &recordingEvents{}
	source := &stubSource{}
	source.wait = func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "good-code", State: echoState(t, rec)}, nil
	}

	flow := &Flow{Events: rec, Source: source, Timeout: 5 * time.Second}
	result, err := flow.Run(context.Background(), FlowRequest{
		ServerName:       "github",
		Resource:         "https://mcp.github.example",
		AuthorizationURL: "https://auth.github.example/authorize",
		TokenURL:         srv.URL,
		ClientID:         "client-abc",
		Scopes:           []string{"read", "write"},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "at-123", result.Token.AccessToken)
	assert.Equal(t, "Bearer", result.Token.TokenType)
	assert.Equal(t, "rt-456", result.Token.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), result.Token.Expiry, 10*time.Second)
	assert.Equal(t, "client-abc", result.ClientID)
	assert.Equal(t, "read write", result.Scope)
	assert.Equal(t, StateComplete, flow.State())

	// The grant carried everything PKCE needs.
	assert.Equal(t, "authorization_code", grant.Get("grant_type"))
	assert.Equal(t, "good-code", grant.Get("code"))
	assert.Equal(t, "client-abc", grant.Get("client_id"))
	assert.Equal(t, source.redirect, grant.Get("redirect_uri"))
	assert.Equal(t, "https://mcp.github.example", grant.Get("resource"))
	assert.NotEmpty(t, grant.Get("code_verifier"))

	// The authorization URL carried the matching challenge.
	authURL, err := url.Parse(rec.AuthURL())
	require.NoError(t, err)
	q := authURL.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-abc", q.Get("client_id"))
	assert.Equal(t, source.redirect, q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "read write", q.Get("scope"))
	assert.NotEmpty(t, q.Get("state"))

	sum := sha256.Sum256([]byte(grant.Get("code_verifier")))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))

	messages := rec.Messages()
	assert.Contains(t, messages, "waiting for authorization")
	assert.Contains(t, messages, "exchanging authorization code")
	assert.Contains(t, messages, "authorization complete")

	assert.True(t, source.closed, "flow must release the code source")
}

func TestFlow_Run_ClientIDFromAuthorizationURL(t *testing.T) {
	srv, grant := mockTokenServer(t, `{"access_token":"at","token_type":"Bearer"}`, http.StatusOK)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{Source: source, Timeout: 5 * time.Second}

	result, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize?client_id=embedded-id",
		TokenURL:         srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "embedded-id", result.ClientID)
	assert.Equal(t, "embedded-id", grant.Get("client_id"))
}

func TestFlow_Run_NoClientID(t *testing.T) {
	flow := &Flow{Source: &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		t.Fatal("flow must fail before waiting for a code")
		return AuthCode{}, nil
	}}}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         "https://auth.example.com/token",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id")
	assert.Equal(t, StateFailed, flow.State())
}

func TestFlow_Run_RejectsBadAuthorizationURL(t *testing.T) {
	flow := &Flow{}
	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "ftp://auth.example.com/authorize",
		TokenURL:         "https://auth.example.com/token",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp://auth.example.com/authorize",
		"the error must name the offending URL")
	assert.Equal(t, StateFailed, flow.State())
}

func TestFlow_Run_RejectsBadTokenURL(t *testing.T) {
	flow := &Flow{}
	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         "auth.example.com/token",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token URL")
	assert.Contains(t, err.Error(), "auth.example.com/token")
}

func TestFlow_Run_RejectsMissingURLs(t *testing.T) {
	flow := &Flow{}
	_, err := flow.Run(context.Background(), FlowRequest{TokenURL: "https://a.example/token"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorization URL")
}

func TestFlow_Run_Timeout(t *testing.T) {
	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		<-ctx.Done()
		return AuthCode{}, ctx.Err()
	}}
	flow := &Flow{Source: source, Timeout: 50 * time.Millisecond}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         "https://auth.example.com/token",
		ClientID:         "c",
	})
	require.Error(t, err)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowTimeout, flowErr.Kind)
	assert.Contains(t, err.Error(), "authorization timed out")
	assert.Equal(t, StateFailed, flow.State())
}

func TestFlow_Run_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		<-ctx.Done()
		return AuthCode{}, ctx.Err()
	}}
	flow := &Flow{Source: source, Timeout: time.Minute}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := flow.Run(ctx, FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         "https://auth.example.com/token",
		ClientID:         "c",
	})
	require.Error(t, err)

	// Caller cancellation is not a timeout.
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		assert.NotEqual(t, FlowTimeout, flowErr.Kind)
	}
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlow_Run_DeniedAtCallback(t *testing.T) {
	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{}, &FlowError{Kind: FlowDenied, Detail: "access_denied user refused"}
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         "https://auth.example.com/token",
		ClientID:         "c",
	})
	require.Error(t, err)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowDenied, flowErr.Kind)
	assert.Equal(t, StateFailed, flow.State())
}

func TestFlow_Run_InvalidGrant(t *testing.T) {
	srv, _ := mockTokenServer(t, `{"error":"invalid_grant","error_description":"code expired"}`, http.StatusBadRequest)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "stale"}, nil
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	})
	require.Error(t, err)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowInvalidGrant, flowErr.Kind)
	assert.Contains(t, flowErr.Detail, "code expired")
}

func TestFlow_Run_DeniedAtTokenEndpoint(t *testing.T) {
	srv, _ := mockTokenServer(t, `{"error":"access_denied"}`, http.StatusForbidden)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	})

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowDenied, flowErr.Kind)
}

func TestFlow_Run_UnknownTokenError(t *testing.T) {
	srv, _ := mockTokenServer(t, `{"error":"server_error","error_description":"boom"}`, http.StatusInternalServerError)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	})

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowUnknown, flowErr.Kind)
	assert.Contains(t, flowErr.Detail, "server_error")
	assert.Contains(t, flowErr.Detail, "boom")
}

func TestFlow_Run_NonJSONTokenError(t *testing.T) {
	srv, _ := mockTokenServer(t, `<html>gateway error</html>`, http.StatusBadGateway)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	})

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowUnknown, flowErr.Kind)
	assert.Contains(t, flowErr.Detail, "status 502")
}

func TestFlow_Run_NetworkUnavailable(t *testing.T) {
	// A server that is already gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	tokenURL := srv.URL
	srv.Close()

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         tokenURL,
		ClientID:         "c",
	})

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowNetworkUnavailable, flowErr.Kind)
}

func TestFlow_Run_MissingAccessToken(t *testing.T) {
	srv, _ := mockTokenServer(t, `{"token_type":"Bearer"}`, http.StatusOK)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	})

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowUnknown, flowErr.Kind)
	assert.Contains(t, flowErr.Detail, "access_token")
}

func TestFlow_Run_StateMismatch(t *testing.T) {
	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c", State: "forged"}, nil
	}}
	flow := &Flow{Source: source}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         "https://auth.example.com/token",
		ClientID:         "c",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
	assert.Equal(t, StateFailed, flow.State())
}

func TestFlow_Run_EmptyStateSkipsCheck(t *testing.T) {
	// Manual paste cannot always recover the state parameter.
	srv, _ := mockTokenServer(t, `{"access_token":"at","token_type":"Bearer"}`, http.StatusOK)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "pasted"}, nil
	}}
	flow := &Flow{Source: source}

	result, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	})
	require.NoError(t, err)
	assert.Equal(t, "at", result.Token.AccessToken)
}

func TestFlow_Run_SingleUse(t *testing.T) {
	srv, _ := mockTokenServer(t, `{"access_token":"at","token_type":"Bearer"}`, http.StatusOK)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{Source: source}

	req := FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	}
	_, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	_, err = flow.Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already ran")
}

func TestFlow_Run_BrowserErrorIsNotFatal(t *testing.T) {
	srv, _ := mockTokenServer(t, `{"access_token":"at","token_type":"Bearer"}`, http.StatusOK)

	source := &stubSource{wait: func(ctx context.Context) (AuthCode, error) {
		return AuthCode{Code: "c"}, nil
	}}
	flow := &Flow{
		Source:  source,
		Browser: func(string) error { return errors.New("no display") },
	}

	_, err := flow.Run(context.Background(), FlowRequest{
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         srv.URL,
		ClientID:         "c",
	})
	assert.NoError(t, err, "a missing browser only downgrades to manual URL opening")
}

func TestFlow_State_InitiallyIdle(t *testing.T) {
	flow := &Flow{}
	assert.Equal(t, StateIdle, flow.State())
}

// =============================================================================
// buildAuthURL / validateEndpoint Tests
// =============================================================================

func TestBuildAuthURL_PreservesExistingQuery(t *testing.T) {
	endpoint, err := url.Parse("https://auth.example.com/authorize?audience=api")
	require.NoError(t, err)

	raw := buildAuthURL(endpoint, "cid", "http://127.0.0.1:1/callback", "https://mcp.example.com", "st", "ch", nil)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "api", q.Get("audience"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "https://mcp.example.com", q.Get("resource"))
	assert.Empty(t, q.Get("scope"))
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"https", "https://auth.example.com/authorize", false},
		{"http", "http://localhost:9000/authorize", false},
		{"empty", "", true},
		{"no scheme", "auth.example.com/authorize", true},
		{"ftp scheme", "ftp://auth.example.com", true},
		{"scheme only", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateEndpoint("token", tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				if tt.raw != "" {
					assert.Contains(t, err.Error(), tt.raw)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGeneratePKCE(t *testing.T) {
	verifier, challenge, err := generatePKCE()
	require.NoError(t, err)
	assert.NotEmpty(t, verifier)
	assert.NotEmpty(t, challenge)
	assert.NotEqual(t, verifier, challenge)

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)
	assert.NotContains(t, verifier, "=", "PKCE strings must be unpadded")
}

// =============================================================================
// LoopbackSource Tests
// =============================================================================

func TestLoopbackSource_CapturesCode(t *testing.T) {
	source := &LoopbackSource{}
	redirectURI, err := source.Start(context.Background())
	require.NoError(t, err)
	defer source.Close()

	assert.Regexp(t, `^http://127\.0\.0\.1:\d+/callback$`, redirectURI)

	resp, err := http.Get(redirectURI + "?code=abc&state=xyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, err := source.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", code.Code)
	assert.Equal(t, "xyz", code.State)
}

func TestLoopbackSource_ErrorParam(t *testing.T) {
	source := &LoopbackSource{}
	redirectURI, err := source.Start(context.Background())
	require.NoError(t, err)
	defer source.Close()

	resp, err := http.Get(redirectURI + "?error=access_denied&error_description=nope")
	require.NoError(t, err)
	resp.Body.Close()

	_, err = source.Wait(context.Background())
	require.Error(t, err)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowDenied, flowErr.Kind)
	assert.Contains(t, flowErr.Detail, "access_denied")
	assert.Contains(t, flowErr.Detail, "nope")
}

func TestLoopbackSource_UnknownErrorParam(t *testing.T) {
	source := &LoopbackSource{}
	redirectURI, err := source.Start(context.Background())
	require.NoError(t, err)
	defer source.Close()

	resp, err := http.Get(redirectURI + "?error=temporarily_unavailable")
	require.NoError(t, err)
	resp.Body.Close()

	_, err = source.Wait(context.Background())
	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowUnknown, flowErr.Kind)
}

func TestLoopbackSource_FirstCallbackWins(t *testing.T) {
	source := &LoopbackSource{}
	redirectURI, err := source.Start(context.Background())
	require.NoError(t, err)
	defer source.Close()

	for _, code := range []string{"first", "second"} {
		resp, err := http.Get(redirectURI + "?code=" + code)
		require.NoError(t, err)
		resp.Body.Close()
	}

	code, err := source.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", code.Code)
}

func TestLoopbackSource_OtherPathsNotFound(t *testing.T) {
	source := &LoopbackSource{}
	redirectURI, err := source.Start(context.Background())
	require.NoError(t, err)
	defer source.Close()

	resp, err := http.Get(strings.Replace(redirectURI, "/callback", "/favicon.ico", 1))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoopbackSource_WaitHonorsContext(t *testing.T) {
	source := &LoopbackSource{}
	_, err := source.Start(context.Background())
	require.NoError(t, err)
	defer source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = source.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// =============================================================================
// PromptSource Tests
// =============================================================================

func TestPromptSource_BareCode(t *testing.T) {
	var out strings.Builder
	source := &PromptSource{In: strings.NewReader("pasted-code\n"), Out: &out}

	_, err := source.Start(context.Background())
	require.NoError(t, err)

	code, err := source.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pasted-code", code.Code)
	assert.Empty(t, code.State)
	assert.Contains(t, out.String(), "Paste")
}

func TestPromptSource_FullRedirectURL(t *testing.T) {
	input := "http://127.0.0.1:8976/callback?code=abc123&state=st9\n"
	source := &PromptSource{In: strings.NewReader(input), Out: &strings.Builder{}}

	code, err := source.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", code.Code)
	assert.Equal(t, "st9", code.State)
}

func TestPromptSource_EmptyInput(t *testing.T) {
	source := &PromptSource{In: strings.NewReader("\n"), Out: &strings.Builder{}}

	_, err := source.Wait(context.Background())
	assert.Error(t, err)
}

func TestPromptSource_CustomRedirect(t *testing.T) {
	source := &PromptSource{RedirectURI: "https://app.example.com/oauth/done"}
	uri, err := source.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/oauth/done", uri)
}

func TestParsePastedCode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCode  string
		wantState string
	}{
		{"bare code", "abc123", "abc123", ""},
		{"padded code", "  abc123  ", "abc123", ""},
		{"full URL", "http://127.0.0.1:8976/callback?code=xyz&state=st", "xyz", "st"},
		{"URL without code", "http://127.0.0.1:8976/callback?state=st", "", "st"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := parsePastedCode(tt.input)
			assert.Equal(t, tt.wantCode, code.Code)
			assert.Equal(t, tt.wantState, code.State)
		})
	}
}

// =============================================================================
// Refresh Tests
// =============================================================================

func TestRefresh_Success(t *testing.T) {
	srv, grant := mockTokenServer(t,
		`{"access_token":"new-at","token_type":"Bearer","expires_in":3600,"refresh_token":"new-rt"}`,
		http.StatusOK)

	cred := &Credential{
		ID:            "mcp_oauth_1000_aa000000",
		ServerName:    "github",
		ServerURL:     "https://mcp.github.example",
		ClientID:      "client-abc",
		RefreshToken:  "old-rt",
		TokenEndpoint: srv.URL,
	}

	token, err := Refresh(context.Background(), nil, cred)
	require.NoError(t, err)

	assert.Equal(t, "new-at", token.AccessToken)
	assert.Equal(t, "new-rt", token.RefreshToken)

	assert.Equal(t, "refresh_token", grant.Get("grant_type"))
	assert.Equal(t, "old-rt", grant.Get("refresh_token"))
	assert.Equal(t, "client-abc", grant.Get("client_id"))
	assert.Equal(t, "https://mcp.github.example", grant.Get("resource"))
}

func TestRefresh_PreservesRefreshToken(t *testing.T) {
	// Servers that do not rotate refresh tokens omit the field.
	srv, _ := mockTokenServer(t, `{"access_token":"new-at","token_type":"Bearer"}`, http.StatusOK)

	cred := &Credential{
		ID:            "mcp_oauth_1000_aa000000",
		RefreshToken:  "keep-me",
		TokenEndpoint: srv.URL,
	}

	token, err := Refresh(context.Background(), nil, cred)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", token.RefreshToken)
}

func TestRefresh_RequiresRefreshToken(t *testing.T) {
	cred := &Credential{ID: "mcp_oauth_1000_aa000000", TokenEndpoint: "https://a.example/token"}

	_, err := Refresh(context.Background(), nil, cred)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mcp_oauth_1000_aa000000")
}

func TestRefresh_RequiresTokenEndpoint(t *testing.T) {
	cred := &Credential{ID: "mcp_oauth_1000_aa000000", RefreshToken: "rt"}

	_, err := Refresh(context.Background(), nil, cred)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token endpoint")
}

func TestRefresh_InvalidGrant(t *testing.T) {
	srv, _ := mockTokenServer(t, `{"error":"invalid_grant","error_description":"refresh token revoked"}`, http.StatusBadRequest)

	cred := &Credential{
		ID:            "mcp_oauth_1000_aa000000",
		RefreshToken:  "revoked",
		TokenEndpoint: srv.URL,
	}

	_, err := Refresh(context.Background(), nil, cred)
	require.Error(t, err)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, FlowInvalidGrant, flowErr.Kind)
}

// =============================================================================
// FlowError Tests
// =============================================================================

func TestFlowError_Messages(t *testing.T) {
	tests := []struct {
		kind FlowErrorKind
		want string
	}{
		{FlowTimeout, "authorization timed out"},
		{FlowDenied, "authorization was denied"},
		{FlowInvalidGrant, "authorization grant was rejected"},
		{FlowNetworkUnavailable, "could not reach the token endpoint"},
		{FlowUnknown, "authorization failed"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := &FlowError{Kind: tt.kind}
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFlowError_Unwrap(t *testing.T) {
	inner := errors.New("socket closed")
	err := &FlowError{Kind: FlowNetworkUnavailable, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "socket closed")
}
