package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAuthTimeout bounds a whole authorization flow. The user has this
// long to approve access before the flow reports a timeout.
const DefaultAuthTimeout = 5 * time.Minute

// DefaultCallbackPort is the loopback port assumed when a pasted-code flow
// needs a redirect URI but no listener is running.
const DefaultCallbackPort = 8976

// FlowState names a phase of the authorization flow.
type FlowState string

const (
	StateIdle                  FlowState = "idle"
	StateAwaitingAuthorization FlowState = "awaiting_authorization"
	StateExchangingCode        FlowState = "exchanging_code"
	StateComplete              FlowState = "complete"
	StateFailed                FlowState = "failed"
)

// Events receives progress notifications from a running flow. Methods are
// called synchronously from the flow goroutine and must not block.
type Events interface {
	// AuthorizationReady fires once the authorization URL is built. The user
	// has to open it and approve access.
	AuthorizationReady(url, instructions string)
	// Progress reports each state transition in human terms.
	Progress(message string)
}

type nopEvents struct{}

func (nopEvents) AuthorizationReady(string, string) {}
func (nopEvents) Progress(string)                   {}

// NopEvents returns an observer that discards all notifications.
func NopEvents() Events { return nopEvents{} }

// AuthCode is what a CodeSource captures from the authorization redirect.
type AuthCode struct {
	Code  string
	State string
}

// CodeSource captures the authorization code after the user approves access.
// Two implementations exist: LoopbackSource listens for the redirect on
// 127.0.0.1, PromptSource asks the user to paste it.
type CodeSource interface {
	// Start readies the source and returns the redirect URI to advertise.
	Start(ctx context.Context) (redirectURI string, err error)
	// Wait blocks until a code arrives or ctx ends.
	Wait(ctx context.Context) (AuthCode, error)
	// Close releases resources. Safe after a failed Start.
	Close() error
}

// FlowRequest describes one authorization run. The endpoint URLs usually
// come from Discoverer.Discover.
type FlowRequest struct {
	ServerName       string
	Resource         string // resource indicator, normally the server URL
	AuthorizationURL string
	TokenURL         string
	ClientID         string // falls back to the client_id query param of AuthorizationURL
	ClientSecret     string
	Scopes           []string
	CallbackPort     int // 0 picks an ephemeral port
}

// FlowResult is the raw token material from a completed flow. Persisting it
// is the caller's job; the flow itself never touches storage.
type FlowResult struct {
	Token    *oauth2.Token
	ClientID string
	Scope    string
}

// Flow runs one OAuth authorization-code exchange with PKCE. A Flow is
// single use: create a fresh one per authorization attempt.
type Flow struct {
	Events     Events             // nil means NopEvents
	Source     CodeSource         // nil means a LoopbackSource on CallbackPort
	HTTPClient *http.Client       // nil means http.DefaultClient
	Browser    func(string) error // nil means the URL is only reported via Events
	Timeout    time.Duration      // zero means DefaultAuthTimeout

	mu    sync.Mutex
	state FlowState
	used  bool
}

// State returns the flow's current phase.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return StateIdle
	}
	return f.state
}

func (f *Flow) setState(state FlowState) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

func (f *Flow) fail(err error) error {
	f.setState(StateFailed)
	return err
}

func (f *Flow) events() Events {
	if f.Events == nil {
		return NopEvents()
	}
	return f.Events
}

func (f *Flow) httpClient() *http.Client {
	if f.HTTPClient == nil {
		return http.DefaultClient
	}
	return f.HTTPClient
}

// Run executes the flow: build the authorization URL, wait for the user to
// approve, exchange the code for tokens. The whole thing races a fixed
// timeout.
func (f *Flow) Run(ctx context.Context, req FlowRequest) (*FlowResult, error) {
	f.mu.Lock()
	if f.used {
		f.mu.Unlock()
		return nil, fmt.Errorf("authorization flow already ran; create a new one")
	}
	f.used = true
	f.mu.Unlock()

	authURL, err := validateEndpoint("authorization", req.AuthorizationURL)
	if err != nil {
		return nil, f.fail(err)
	}
	if _, err := validateEndpoint("token", req.TokenURL); err != nil {
		return nil, f.fail(err)
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = authURL.Query().Get("client_id")
	}
	if clientID == "" {
		return nil, f.fail(fmt.Errorf("no OAuth client id: configure one or use an authorization URL that embeds client_id"))
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	flowCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	source := f.Source
	if source == nil {
		source = &LoopbackSource{Port: req.CallbackPort}
	}
	redirectURI, err := source.Start(flowCtx)
	if err != nil {
		return nil, f.fail(fmt.Errorf("failed to start authorization capture: %w", err))
	}
	defer source.Close()

	verifier, challenge, err := generatePKCE()
	if err != nil {
		return nil, f.fail(fmt.Errorf("failed to generate PKCE: %w", err))
	}
	state := generateState()

	fullAuthURL := buildAuthURL(authURL, clientID, redirectURI, req.Resource, state, challenge, req.Scopes)

	f.setState(StateAwaitingAuthorization)
	f.events().AuthorizationReady(fullAuthURL, "Open this URL in your browser and approve access.")
	f.events().Progress("waiting for authorization")
	if f.Browser != nil {
		if err := f.Browser(fullAuthURL); err != nil {
			f.events().Progress("could not open a browser; open the URL manually")
		}
	}

	code, err := source.Wait(flowCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, f.fail(&FlowError{
				Kind:   FlowTimeout,
				Detail: fmt.Sprintf("no authorization after %s", timeout),
			})
		}
		return nil, f.fail(err)
	}

	// Manual paste may not carry the state back; only verify when it did.
	if code.State != "" && code.State != state {
		return nil, f.fail(fmt.Errorf("state mismatch in authorization response"))
	}

	f.setState(StateExchangingCode)
	f.events().Progress("exchanging authorization code")

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code.Code},
		"redirect_uri":  {redirectURI},
		"client_id":     {clientID},
		"code_verifier": {verifier},
	}
	if req.Resource != "" {
		data.Set("resource", req.Resource)
	}

	token, scope, err := tokenRequest(flowCtx, f.httpClient(), req.TokenURL, data, clientID, req.ClientSecret)
	if err != nil {
		return nil, f.fail(err)
	}

	f.setState(StateComplete)
	f.events().Progress("authorization complete")

	return &FlowResult{Token: token, ClientID: clientID, Scope: scope}, nil
}

// Refresh performs a refresh-token grant for a stored credential and returns
// the new token material. The stored credential is not modified.
func Refresh(ctx context.Context, client *http.Client, cred *Credential) (*oauth2.Token, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("credential %s has no refresh token", cred.ID)
	}
	if cred.TokenEndpoint == "" {
		return nil, fmt.Errorf("credential %s has no recorded token endpoint", cred.ID)
	}
	if client == nil {
		client = http.DefaultClient
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
		"client_id":     {cred.ClientID},
	}
	if cred.ServerURL != "" {
		data.Set("resource", cred.ServerURL)
	}

	token, _, err := tokenRequest(ctx, client, cred.TokenEndpoint, data, cred.ClientID, cred.ClientSecret)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = cred.RefreshToken
	}
	return token, nil
}

// tokenRequest posts a grant to the token endpoint and maps failures onto
// the flow error taxonomy by inspecting the RFC 6749 error response.
func tokenRequest(ctx context.Context, client *http.Client, endpoint string, data url.Values, clientID, clientSecret string) (*oauth2.Token, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientSecret != "" {
		req.SetBasicAuth(clientID, clientSecret)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", &FlowError{Kind: FlowTimeout, Err: err}
		}
		if errors.Is(err, context.Canceled) {
			return nil, "", err
		}
		return nil, "", &FlowError{Kind: FlowNetworkUnavailable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, "", &FlowError{Kind: FlowNetworkUnavailable, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", tokenErrorFromResponse(resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, "", &FlowError{Kind: FlowUnknown, Detail: "malformed token response", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return nil, "", &FlowError{Kind: FlowUnknown, Detail: "token response has no access_token"}
	}

	token := &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
	}
	if tokenResp.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return token, tokenResp.Scope, nil
}

func tokenErrorFromResponse(status int, body []byte) error {
	var oauthErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &oauthErr)

	detail := oauthErr.Description
	if detail == "" {
		detail = fmt.Sprintf("token endpoint returned status %d", status)
	}

	switch oauthErr.Error {
	case "invalid_grant":
		return &FlowError{Kind: FlowInvalidGrant, Detail: detail}
	case "access_denied":
		return &FlowError{Kind: FlowDenied, Detail: detail}
	default:
		return &FlowError{Kind: FlowUnknown, Detail: strings.TrimSpace(oauthErr.Error + " " + detail)}
	}
}

// validateEndpoint rejects malformed endpoint URLs before any network I/O.
func validateEndpoint(role, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing %s URL", role)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s URL %q: %w", role, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid %s URL %q: scheme must be http or https", role, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid %s URL %q: missing host", role, raw)
	}
	return u, nil
}

// buildAuthURL assembles the authorization URL, preserving any query params
// already embedded in the endpoint.
func buildAuthURL(endpoint *url.URL, clientID, redirectURI, resource, state, challenge string, scopes []string) string {
	u := *endpoint
	v := u.Query()
	v.Set("response_type", "code")
	v.Set("client_id", clientID)
	v.Set("redirect_uri", redirectURI)
	v.Set("state", state)
	v.Set("code_challenge", challenge)
	v.Set("code_challenge_method", "S256")
	if resource != "" {
		v.Set("resource", resource)
	}
	if len(scopes) > 0 {
		v.Set("scope", strings.Join(scopes, " "))
	}
	u.RawQuery = v.Encode()
	return u.String()
}

func generatePKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)

	h := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(h[:])
	return verifier, challenge, nil
}

func generateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// LoopbackSource captures the authorization code with a local HTTP listener,
// the standard strategy for CLI OAuth.
type LoopbackSource struct {
	Port int // 0 picks an ephemeral port

	server  *http.Server
	results chan callbackResult
}

type callbackResult struct {
	code AuthCode
	err  error
}

func (s *LoopbackSource) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port))
	if err != nil {
		return "", err
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
	s.results = make(chan callbackResult, 1)
	s.server = &http.Server{Handler: http.HandlerFunc(s.handleCallback)}

	go s.server.Serve(listener)

	return redirectURI, nil
}

func (s *LoopbackSource) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/callback" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		kind := FlowUnknown
		if errCode == "access_denied" {
			kind = FlowDenied
		}
		s.deliver(callbackResult{err: &FlowError{
			Kind:   kind,
			Detail: strings.TrimSpace(errCode + " " + q.Get("error_description")),
		}})
	} else {
		s.deliver(callbackResult{code: AuthCode{Code: q.Get("code"), State: q.Get("state")}})
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, callbackPage)
}

// deliver keeps the first callback; a reloaded browser tab must not race it.
func (s *LoopbackSource) deliver(res callbackResult) {
	select {
	case s.results <- res:
	default:
	}
}

func (s *LoopbackSource) Wait(ctx context.Context) (AuthCode, error) {
	select {
	case res := <-s.results:
		return res.code, res.err
	case <-ctx.Done():
		return AuthCode{}, ctx.Err()
	}
}

func (s *LoopbackSource) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

const callbackPage = `<!DOCTYPE html>
<html>
<head><title>Authorization Complete</title></head>
<body>
<h1>Authorization Complete</h1>
<p>You can close this window and return to the terminal.</p>
<script>window.close();</script>
</body>
</html>`

// PromptSource asks the user to paste the code, for environments where no
// loopback listener can receive the redirect (ssh sessions, containers).
type PromptSource struct {
	In          io.Reader // defaults to os.Stdin
	Out         io.Writer // defaults to os.Stderr
	RedirectURI string    // a pre-registered redirect; defaults to the loopback shape
}

func (s *PromptSource) Start(ctx context.Context) (string, error) {
	if s.RedirectURI != "" {
		return s.RedirectURI, nil
	}
	// Nothing listens here; the user copies the code out of the address bar
	// after the redirect fails to load.
	return fmt.Sprintf("http://127.0.0.1:%d/callback", DefaultCallbackPort), nil
}

func (s *PromptSource) Wait(ctx context.Context) (AuthCode, error) {
	in := s.In
	if in == nil {
		in = os.Stdin
	}
	out := s.Out
	if out == nil {
		out = os.Stderr
	}

	fmt.Fprint(out, "Paste the authorization code or the full redirect URL: ")

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			lines <- scanner.Text()
			return
		}
		if err := scanner.Err(); err != nil {
			errs <- err
			return
		}
		errs <- io.EOF
	}()

	select {
	case line := <-lines:
		code := parsePastedCode(line)
		if code.Code == "" {
			return AuthCode{}, fmt.Errorf("no authorization code in input")
		}
		return code, nil
	case err := <-errs:
		return AuthCode{}, fmt.Errorf("reading authorization code: %w", err)
	case <-ctx.Done():
		return AuthCode{}, ctx.Err()
	}
}

func (s *PromptSource) Close() error { return nil }

// parsePastedCode accepts either a bare code or the full redirect URL the
// browser landed on.
func parsePastedCode(input string) AuthCode {
	trimmed := strings.TrimSpace(input)
	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && u.Host != "" {
		return AuthCode{Code: u.Query().Get("code"), State: u.Query().Get("state")}
	}
	return AuthCode{Code: trimmed}
}

// OpenBrowser opens url with the platform browser.
func OpenBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform")
	}

	return exec.Command(cmd, args...).Start()
}
