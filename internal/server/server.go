// Package server exposes the managed MCP fleet as an MCP server of its own,
// so any MCP client can search, call, and reload the configured servers
// through one endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/standardbeagle/mcpm/internal/logging"
	"github.com/standardbeagle/mcpm/internal/registry"
)

const (
	serverName    = "mcpm"
	serverVersion = "0.2.0"
)

// Server is the aggregate MCP server over a registry.
type Server struct {
	mcpServer *mcp.Server
	registry  *registry.Registry
	logger    logging.Logger
}

// New creates a Server over the given registry. A nil logger falls back to
// the process default.
func New(reg *registry.Registry, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		registry: reg,
		logger:   logger,
	}

	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		&mcp.ServerOptions{
			Capabilities: &mcp.ServerCapabilities{
				Tools: &mcp.ToolCapabilities{},
			},
		},
	)

	s.registerTools()
	return s
}

// Start connects the configured servers in the background. The MCP endpoint
// is usable immediately; tool listings fill in as connections land.
func (s *Server) Start(ctx context.Context) {
	go func() {
		result, err := s.registry.DiscoverAndConnect(ctx)
		if err != nil {
			s.logger.Error("connecting configured servers", "error", err)
			return
		}
		s.logger.Info("startup connections settled",
			"connected", len(result.Connected), "failed", len(result.Failed))
		for name, connErr := range result.Failed {
			s.logger.Warn("server failed to connect", "server", name, "error", connErr)
		}
	}()
}

// RunStdio serves MCP over stdin/stdout until ctx is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	s.Start(ctx)
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves MCP over HTTP/SSE on the given port.
func (s *Server) RunHTTP(ctx context.Context, port int) error {
	s.Start(ctx)

	addr := fmt.Sprintf(":%d", port)
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/", sseHandler)

	s.logger.Info("mcpm server running", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

// Close shuts down all managed connections.
func (s *Server) Close() error {
	return s.registry.Close()
}

// Registry returns the underlying registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}
