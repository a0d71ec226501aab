package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/mcpm/internal/config"
	"github.com/standardbeagle/mcpm/internal/logging"
)

// SDKConnector connects using the official MCP Go SDK.
type SDKConnector struct {
	impl   *mcp.Implementation
	logger logging.Logger
}

// NewSDKConnector creates a connector identifying itself as mcpm.
func NewSDKConnector(logger logging.Logger) *SDKConnector {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SDKConnector{
		impl: &mcp.Implementation{
			Name:    "mcpm",
			Version: "0.2.0",
		},
		logger: logger,
	}
}

// Connect dials the server described by cfg. Failures come back as a
// *ConnectError carrying the failure kind and, for remote transports, any
// auth challenge the server sent during the handshake.
func (c *SDKConnector) Connect(ctx context.Context, name string, cfg config.ServerConfig) (Session, error) {
	client := mcp.NewClient(c.impl, nil)

	var transport mcp.Transport
	var ht *headerTransport
	endpoint := cfg.URL

	switch cfg.Type {
	case config.TransportStdio:
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcp.CommandTransport{Command: cmd}
		endpoint = cfg.Command

	case config.TransportHTTP:
		ht = newHeaderTransport(cfg.Headers)
		transport = &mcp.StreamableClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: &http.Client{Transport: ht},
		}

	case config.TransportSSE:
		ht = newHeaderTransport(cfg.Headers)
		transport = &mcp.SSEClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: &http.Client{Transport: ht},
		}

	default:
		return nil, &ConnectError{
			Server: name,
			Kind:   FailureProtocol,
			Err:    fmt.Errorf("unknown transport type: %q", cfg.Type),
		}
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		connErr := &ConnectError{Server: name, Endpoint: endpoint, Err: err}
		if ht != nil {
			connErr.Status, connErr.Challenge = ht.lastAuthRejection()
		}
		connErr.Kind = classifyKind(err, connErr.Status)
		c.logger.Debug("connect failed", "server", name, "kind", string(connErr.Kind), "error", err)
		return nil, connErr
	}

	return &sdkSession{name: name, session: session}, nil
}

// headerTransport injects configured headers into every request and records
// auth rejections so a failed handshake can be classified afterwards.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string

	mu        sync.Mutex
	status    int
	challenge string
}

func newHeaderTransport(headers map[string]string) *headerTransport {
	return &headerTransport{base: http.DefaultTransport, headers: headers}
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.base.RoundTrip(req)
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		t.mu.Lock()
		t.status = resp.StatusCode
		t.challenge = resp.Header.Get("WWW-Authenticate")
		t.mu.Unlock()
	}
	return resp, err
}

func (t *headerTransport) lastAuthRejection() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.challenge
}

// sdkSession adapts *mcp.ClientSession to the Session interface.
type sdkSession struct {
	name    string
	session *mcp.ClientSession
}

func (s *sdkSession) Tools(ctx context.Context) ([]Tool, error) {
	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, tool := range result.Tools {
		tools = append(tools, Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return tools, nil
}

func (s *sdkSession) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	result, err := s.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}

	if result.IsError {
		var errMsg string
		for _, content := range result.Content {
			if text, ok := content.(*mcp.TextContent); ok {
				errMsg += text.Text
			}
		}
		if errMsg == "" {
			errMsg = "tool returned error"
		}
		return nil, fmt.Errorf("tool error: %s", errMsg)
	}

	return ContentToAny(result), nil
}

func (s *sdkSession) Ping(ctx context.Context) error {
	return s.session.Ping(ctx, nil)
}

func (s *sdkSession) Close() error {
	return s.session.Close()
}

func schemaToMap(schema any) map[string]any {
	switch v := schema.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// ContentToAny converts a tool call result to plain Go values. Structured
// content wins; otherwise a single content item collapses to its value.
func ContentToAny(result *mcp.CallToolResult) any {
	if result.StructuredContent != nil {
		return result.StructuredContent
	}

	if len(result.Content) == 0 {
		return nil
	}

	if len(result.Content) == 1 {
		return contentItemToAny(result.Content[0])
	}

	items := make([]any, 0, len(result.Content))
	for _, c := range result.Content {
		items = append(items, contentItemToAny(c))
	}
	return items
}

func contentItemToAny(content mcp.Content) any {
	switch c := content.(type) {
	case *mcp.TextContent:
		return c.Text
	case *mcp.ImageContent:
		return map[string]any{
			"type":     "image",
			"mimeType": c.MIMEType,
			"data":     c.Data,
		}
	case *mcp.AudioContent:
		return map[string]any{
			"type":     "audio",
			"mimeType": c.MIMEType,
			"data":     c.Data,
		}
	default:
		return fmt.Sprintf("%v", content)
	}
}
