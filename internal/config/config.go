package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Transport types for MCP servers.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// Auth types a server config may declare.
const (
	AuthTypeOAuth  = "oauth"
	AuthTypeAPIKey = "apikey"
)

// ServerConfig is a single MCP server entry in a scope document.
// The Type field selects the active shape: stdio entries use Command/Args/Env,
// http and sse entries use URL/Headers. Validate enforces that exactly one
// shape is populated.
type ServerConfig struct {
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// Enabled defaults to true when absent from the document.
	Enabled *bool         `json:"enabled,omitempty"`
	Auth    *AuthConfig   `json:"auth,omitempty"`
	OAuth   *OAuthOptions `json:"oauth,omitempty"`

	// Connection tuning. Timeout is a duration string ("30s", "2m").
	// MaxRetries of -1 disables reconnection; 0 means the default.
	Timeout    string `json:"timeout,omitempty"`
	MaxRetries int    `json:"maxRetries,omitempty"`

	HealthCheckInterval string `json:"healthCheckInterval,omitempty"`
}

// AuthConfig declares how connections to the server authenticate.
// CredentialID points into credential storage; for oauth it is absent until
// the first successful authorization.
type AuthConfig struct {
	Type         string `json:"type"`
	CredentialID string `json:"credentialId,omitempty"`
}

// OAuthOptions carries per-server overrides for the authorization flow.
type OAuthOptions struct {
	ClientID     string `json:"clientId,omitempty"`
	CallbackPort int    `json:"callbackPort,omitempty"`
}

// IsEnabled reports whether the server should be connected.
// An absent enabled field means true.
func (c *ServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Clone returns a deep copy. Resolution and reconciliation work on copies so
// the stored document is never mutated in place.
func (c *ServerConfig) Clone() ServerConfig {
	out := *c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	if c.Enabled != nil {
		enabled := *c.Enabled
		out.Enabled = &enabled
	}
	if c.Auth != nil {
		auth := *c.Auth
		out.Auth = &auth
	}
	if c.OAuth != nil {
		oauth := *c.OAuth
		out.OAuth = &oauth
	}
	return out
}

// Validate checks the shape invariants before a config is written or connected.
func (c *ServerConfig) Validate() error {
	switch c.Type {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio server requires a command")
		}
		if c.URL != "" {
			return fmt.Errorf("stdio server must not set a url")
		}
	case TransportHTTP, TransportSSE:
		if c.URL == "" {
			return fmt.Errorf("%s server requires a url", c.Type)
		}
		if c.Command != "" {
			return fmt.Errorf("%s server must not set a command", c.Type)
		}
	case "":
		return fmt.Errorf("missing server type (stdio, http, or sse)")
	default:
		return fmt.Errorf("unknown server type %q (expected stdio, http, or sse)", c.Type)
	}

	if c.Auth != nil {
		switch c.Auth.Type {
		case AuthTypeOAuth, AuthTypeAPIKey:
		default:
			return fmt.Errorf("unknown auth type %q (expected oauth or apikey)", c.Auth.Type)
		}
	}

	return nil
}

// ValidateName checks that a server name is usable as a document key.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &InvalidNameError{Name: name, Reason: "name is empty"}
	}
	if strings.ContainsAny(name, " \t\n") {
		return &InvalidNameError{Name: name, Reason: "name contains whitespace"}
	}
	return nil
}

// Scope is a configuration precedence tier. Lookup order is user then
// project; the first document containing a name owns it.
type Scope int

const (
	ScopeUser Scope = iota
	ScopeProject
)

func (s Scope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeProject:
		return "project"
	default:
		return "unknown"
	}
}

// ParseScope parses a scope name.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "user":
		return ScopeUser, nil
	case "project":
		return ScopeProject, nil
	default:
		return ScopeUser, fmt.Errorf("unknown scope %q (expected user or project)", s)
	}
}

// Scopes returns all scopes in lookup-precedence order.
func Scopes() []Scope {
	return []Scope{ScopeUser, ScopeProject}
}

// Document is the on-disk shape of one scope's configuration.
// DisabledServers is a side channel carried only by the user document: it
// suppresses discovered servers, whose declaring files this tool cannot edit.
type Document struct {
	MCPServers      map[string]ServerConfig `json:"mcpServers"`
	DisabledServers []string                `json:"disabledServers,omitempty"`
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{
		MCPServers: make(map[string]ServerConfig),
	}
}

// Origin records where a server entry came from: an owned scope document, or
// a discovery provider's file. Provider is empty for owned entries.
type Origin struct {
	Scope    Scope  `json:"scope"`
	Provider string `json:"provider,omitempty"`
	Path     string `json:"path,omitempty"`
}

// IsDiscovered reports whether the entry came from a foreign config file.
func (o Origin) IsDiscovered() bool {
	return o.Provider != ""
}

func (o Origin) String() string {
	if o.IsDiscovered() {
		return o.Provider
	}
	return o.Scope.String()
}

// Entry pairs a server name and config with its origin. DesiredSet returns
// entries so callers keep source metadata without re-querying.
type Entry struct {
	Name   string
	Config ServerConfig
	Origin Origin
}

// ToJSON renders a config for display.
func (c *ServerConfig) ToJSON() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
