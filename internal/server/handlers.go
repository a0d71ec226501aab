package server

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/standardbeagle/mcpm/internal/registry"
)

// DefaultSearchLimit is the default maximum number of tools returned by search_tools.
const DefaultSearchLimit = 20

// MaxSearchLimit is the largest limit search_tools will honor.
const MaxSearchLimit = 100

// SearchToolsInput is the input for the search_tools tool.
type SearchToolsInput struct {
	Query  string `json:"query,omitempty"`
	Server string `json:"server,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SearchToolsOutput is the output for the search_tools tool.
type SearchToolsOutput struct {
	Tools   []registry.ToolInfo `json:"tools"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	HasMore bool                `json:"has_more"`
}

func (s *Server) handleSearchTools(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchToolsInput,
) (*mcp.CallToolResult, SearchToolsOutput, error) {
	tools := s.registry.SearchTools(input.Query, input.Server)
	total := len(tools)

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	if offset >= len(tools) {
		tools = []registry.ToolInfo{}
	} else {
		tools = tools[offset:]
		if len(tools) > limit {
			tools = tools[:limit]
		}
	}

	return nil, SearchToolsOutput{
		Tools:   tools,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(tools) < total,
	}, nil
}

// ExecuteToolInput is the input for the execute_tool tool.
type ExecuteToolInput struct {
	Server     string         `json:"server"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (s *Server) handleExecuteTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ExecuteToolInput,
) (*mcp.CallToolResult, any, error) {
	if input.Server == "" {
		return nil, nil, fmt.Errorf("server is required")
	}
	if input.Tool == "" {
		return nil, nil, fmt.Errorf("tool is required")
	}

	result, err := s.registry.ExecuteTool(ctx, input.Server, input.Tool, input.Parameters)
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

// ReloadServersInput is the input for the reload_servers tool.
type ReloadServersInput struct{}

// ReloadServersOutput is the output for the reload_servers tool.
type ReloadServersOutput struct {
	Message   string            `json:"message"`
	Connected []string          `json:"connected,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func (s *Server) handleReloadServers(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ReloadServersInput,
) (*mcp.CallToolResult, ReloadServersOutput, error) {
	result, err := s.registry.Reload(ctx)
	if err != nil {
		return nil, ReloadServersOutput{}, fmt.Errorf("reload failed: %w", err)
	}

	failed := make(map[string]string, len(result.Failed))
	for name, connErr := range result.Failed {
		failed[name] = connErr.Error()
	}

	return nil, ReloadServersOutput{
		Message:   fmt.Sprintf("Reloaded: %d connected, %d failed", len(result.Connected), len(failed)),
		Connected: result.Connected,
		Failed:    failed,
	}, nil
}
