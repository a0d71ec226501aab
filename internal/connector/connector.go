// Package connector dials MCP servers and wraps their sessions.
package connector

import (
	"context"

	"github.com/standardbeagle/mcpm/internal/config"
)

// Tool describes a tool exposed by a connected server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Session is a live connection to an MCP server.
type Session interface {
	// Tools lists the tools the server exposes.
	Tools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a tool and converts its result to plain Go values.
	CallTool(ctx context.Context, tool string, args map[string]any) (any, error)

	// Ping checks that the server still responds.
	Ping(ctx context.Context) error

	// Close terminates the session. Closing twice is safe.
	Close() error
}

// Connector establishes sessions. The registry depends on this interface so
// tests can substitute a stub for the real SDK implementation.
type Connector interface {
	Connect(ctx context.Context, name string, cfg config.ServerConfig) (Session, error)
}
