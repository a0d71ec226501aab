// Package registry supervises the lifecycle of configured MCP servers:
// connecting, disconnecting, reloading, reauthorizing, and routing tool
// calls to live sessions.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/mcpm/internal/auth"
	"github.com/standardbeagle/mcpm/internal/cache"
	"github.com/standardbeagle/mcpm/internal/config"
	"github.com/standardbeagle/mcpm/internal/connector"
	"github.com/standardbeagle/mcpm/internal/logging"
)

// ConnState is the lifecycle phase of one server connection.
type ConnState string

const (
	StateConfigured   ConnState = "configured"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateDisconnected ConnState = "disconnected"
	StateFailed       ConnState = "failed"
)

// ToolInfo is a tool with its owning server.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Server      string         `json:"server"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ServerStatus is the full per-server view for status output.
type ServerStatus struct {
	Name              string       `json:"name"`
	Type              string       `json:"type"`
	State             ConnState    `json:"state"`
	Origin            string       `json:"origin"`
	ToolCount         int          `json:"tool_count"`
	Error             string       `json:"error,omitempty"`
	ReconnectAttempts int          `json:"reconnect_attempts,omitempty"`
	HealthStatus      HealthStatus `json:"health_status"`
	LastHealthCheck   string       `json:"last_health_check,omitempty"`
	HealthError       string       `json:"health_error,omitempty"`
}

// serverState is everything the registry tracks for one name.
type serverState struct {
	config  config.ServerConfig
	origin  config.Origin
	state   ConnState
	session connector.Session
	err     error

	reconnectAttempts int

	healthStatus    HealthStatus
	lastHealthCheck time.Time
	healthError     error
}

// Options configures a Registry. Zero-value fields get working defaults;
// tests usually inject Connector and Flow.
type Options struct {
	Store       *config.Store
	Credentials auth.CredentialStore
	Connector   connector.Connector
	ToolCache   *cache.Store       // nil disables tool caching
	Flow        FlowRunner         // nil runs the real browser flow
	Discovery   EndpointDiscoverer // nil probes well-known metadata URLs
	Logger      logging.Logger
}

// Registry manages the set of MCP server connections. Operations on
// different names proceed concurrently; callers serialize operations on the
// same name.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*serverState

	store      *config.Store
	resolver   *auth.Resolver
	creds      auth.CredentialStore
	dialer     connector.Connector
	toolCache  *cache.Store
	flow       FlowRunner
	discoverer EndpointDiscoverer
	index      *ToolIndex
	logger     logging.Logger

	// registerClient defaults to dynamic client registration against the
	// discovered endpoint.
	registerClient func(ctx context.Context, registrationURL, redirectURI string) (clientID, clientSecret string, err error)

	healthCheckCancel context.CancelFunc
	healthCheckDone   chan struct{}
}

// New creates a Registry.
func New(opts Options) *Registry {
	if opts.Credentials == nil {
		opts.Credentials = auth.NewFileStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Connector == nil {
		opts.Connector = connector.NewSDKConnector(opts.Logger)
	}
	if opts.Flow == nil {
		opts.Flow = NewBrowserFlow(nil)
	}
	return &Registry{
		states:     make(map[string]*serverState),
		store:      opts.Store,
		resolver:   auth.NewResolver(opts.Credentials, opts.Logger),
		creds:      opts.Credentials,
		dialer:     opts.Connector,
		toolCache:  opts.ToolCache,
		flow:       opts.Flow,
		discoverer: opts.Discovery,
		index:      NewToolIndex(),
		logger:     opts.Logger,
	}
}

// SetConfigured registers a name without connecting it. An existing entry
// keeps its state; only the config and origin are refreshed.
func (r *Registry) SetConfigured(name string, cfg config.ServerConfig, origin config.Origin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.states[name]; ok {
		s.config = cfg
		s.origin = origin
		return
	}
	r.states[name] = &serverState{
		config: cfg,
		origin: origin,
		state:  StateConfigured,
	}
}

func (r *Registry) setConnecting(name string, cfg config.ServerConfig, origin config.Origin, state ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[name]
	if !ok {
		s = &serverState{}
		r.states[name] = s
	}
	s.config = cfg
	s.origin = origin
	s.state = state
	s.err = nil
}

func (r *Registry) setConnected(name string, session connector.Session, tools []connector.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[name]
	if !ok {
		s = &serverState{}
		r.states[name] = s
	}
	s.session = session
	s.state = StateConnected
	s.err = nil
	s.reconnectAttempts = 0

	infos := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			Server:      name,
			InputSchema: t.InputSchema,
		})
	}
	r.index.Add(name, infos)
}

func (r *Registry) setFailed(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[name]
	if !ok {
		s = &serverState{}
		r.states[name] = s
	}
	s.state = StateFailed
	s.err = err
	s.session = nil
	r.index.Remove(name)
}

// DisconnectServer closes one server's session. Unknown or already
// disconnected names are a no-op.
func (r *Registry) DisconnectServer(ctx context.Context, name string) error {
	r.mu.Lock()
	s, ok := r.states[name]
	if !ok || s.session == nil {
		if ok {
			s.state = StateDisconnected
		}
		r.mu.Unlock()
		return nil
	}
	session := s.session
	s.session = nil
	s.state = StateDisconnected
	r.index.Remove(name)
	r.mu.Unlock()

	if err := session.Close(); err != nil {
		r.logger.Warn("error closing MCP session", "server", name, "error", err)
	}
	return nil
}

// DisconnectAll closes every live session. Safe to call repeatedly.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	for _, name := range r.AllServerNames() {
		if err := r.DisconnectServer(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// forget drops a name from the registry entirely, closing any session.
func (r *Registry) forget(name string) {
	r.mu.Lock()
	s, ok := r.states[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	session := s.session
	delete(r.states, name)
	r.index.Remove(name)
	r.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			r.logger.Warn("error closing MCP session", "server", name, "error", err)
		}
	}
}

// Close shuts the registry down: background health checks stop and every
// session closes.
func (r *Registry) Close() error {
	r.StopBackgroundHealthCheck()
	return r.DisconnectAll(context.Background())
}

// ConnectionStatus returns the status for one name. Unknown names report an
// empty status with their name filled in.
func (r *Registry) ConnectionStatus(name string) ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[name]
	if !ok {
		return ServerStatus{Name: name, HealthStatus: HealthStatusUnknown}
	}
	return r.statusLocked(name, s)
}

// Status returns the full per-server view, sorted by name.
func (r *Registry) Status() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServerStatus, 0, len(r.states))
	for name, s := range r.states {
		out = append(out, r.statusLocked(name, s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) statusLocked(name string, s *serverState) ServerStatus {
	st := ServerStatus{
		Name:              name,
		Type:              s.config.Type,
		State:             s.state,
		Origin:            s.origin.String(),
		ToolCount:         r.index.CountForServer(name),
		ReconnectAttempts: s.reconnectAttempts,
		HealthStatus:      s.healthStatus,
	}
	if st.HealthStatus == "" {
		st.HealthStatus = HealthStatusUnknown
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if s.state == StateReconnecting {
		st.Error = fmt.Sprintf("reconnecting (attempt %d)", s.reconnectAttempts)
	}
	if !s.lastHealthCheck.IsZero() {
		st.LastHealthCheck = s.lastHealthCheck.Format(time.RFC3339)
	}
	if s.healthError != nil {
		st.HealthError = s.healthError.Error()
	}
	return st
}

// AllServerNames returns every known name, sorted.
func (r *Registry) AllServerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectedServers returns the names with a live session, sorted.
func (r *Registry) ConnectedServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.states))
	for name, s := range r.states {
		if s.state == StateConnected && s.session != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Origin reports where a server's config came from.
func (r *Registry) Origin(name string) (config.Origin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[name]
	if !ok {
		return config.Origin{}, false
	}
	return s.origin, true
}

// Config returns the config a server was registered with.
func (r *Registry) Config(name string) (config.ServerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[name]
	if !ok {
		return config.ServerConfig{}, false
	}
	return s.config.Clone(), true
}

// Tools returns every tool across connected servers.
func (r *Registry) Tools() []ToolInfo {
	return r.index.All()
}

// SearchTools queries the tool index, optionally scoped to one server.
func (r *Registry) SearchTools(query, server string) []ToolInfo {
	return r.index.Search(query, server)
}

func (r *Registry) session(name string) (connector.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[name]
	if !ok || s.session == nil {
		return nil, false
	}
	return s.session, true
}

// ExecuteTool routes a tool call to the owning server's session.
func (r *Registry) ExecuteTool(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	session, ok := r.session(server)
	if !ok {
		return nil, &NotConnectedError{
			Name:      server,
			Connected: r.ConnectedServers(),
		}
	}

	result, err := session.CallTool(ctx, tool, args)
	if err != nil {
		// The protocol reports unknown tools as a generic call error.
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "unknown") {
			return nil, &ToolNotFoundError{
				Server:         server,
				Tool:           tool,
				AvailableTools: r.index.NamesForServer(server),
			}
		}
		return nil, err
	}
	return result, nil
}

// NotConnectedError is returned when a tool call names a server without a
// live session.
type NotConnectedError struct {
	Name      string
	Connected []string
}

func (e *NotConnectedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "MCP server not connected: %s\n\n", e.Name)

	if len(e.Connected) > 0 {
		sb.WriteString("Connected servers:\n")
		for _, name := range e.Connected {
			fmt.Fprintf(&sb, "  - %s\n", name)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Fix:\n")
	fmt.Fprintf(&sb, "1. Check the server name spelling\n")
	fmt.Fprintf(&sb, "2. Add it: mcpm add %s ...\n", e.Name)
	fmt.Fprintf(&sb, "3. Or connect the configured set: mcpm reload\n")
	return sb.String()
}

// ToolNotFoundError is returned when a connected server does not expose the
// requested tool.
type ToolNotFoundError struct {
	Server         string
	Tool           string
	AvailableTools []string
}

func (e *ToolNotFoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tool %q not found on MCP %s\n\n", e.Tool, e.Server)

	if len(e.AvailableTools) > 0 {
		sb.WriteString("Available tools:\n")
		for _, name := range e.AvailableTools {
			fmt.Fprintf(&sb, "  - %s\n", name)
		}
	}
	return sb.String()
}
