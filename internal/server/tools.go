package server

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerTools registers the aggregate tools with handwritten schemas.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		&mcp.Tool{
			Name:         "search_tools",
			Description:  "Search tools across all connected MCP servers by name and description. Results are paginated (default: 20, max: 100); use offset for subsequent pages. Response includes total count and has_more flag.",
			InputSchema:  searchToolsInputSchema,
			OutputSchema: searchToolsOutputSchema,
		},
		s.wrapSearchTools,
	)

	s.mcpServer.AddTool(
		&mcp.Tool{
			Name:         "execute_tool",
			Description:  "Execute a tool on a connected MCP server. The tool name and parameters pass through unchanged.",
			InputSchema:  executeToolInputSchema,
			OutputSchema: executeToolOutputSchema,
		},
		s.wrapExecuteTool,
	)

	s.mcpServer.AddTool(
		&mcp.Tool{
			Name:         "reload_servers",
			Description:  "Disconnect every managed server and reconnect from the current config files. Picks up added, removed, and edited server entries.",
			InputSchema:  reloadServersInputSchema,
			OutputSchema: reloadServersOutputSchema,
		},
		s.wrapReloadServers,
	)
}

// Wrapper handlers parse the raw arguments and call the typed handlers.

func (s *Server) wrapSearchTools(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SearchToolsInput
	if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
		return nil, err
	}

	_, output, err := s.handleSearchTools(ctx, req, input)
	if err != nil {
		return errorResult(err), nil
	}
	return toCallToolResult(output)
}

func (s *Server) wrapExecuteTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ExecuteToolInput
	if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
		return nil, err
	}

	_, output, err := s.handleExecuteTool(ctx, req, input)
	if err != nil {
		return errorResult(err), nil
	}
	return toCallToolResult(output)
}

func (s *Server) wrapReloadServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ReloadServersInput
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
			return nil, err
		}
	}

	_, output, err := s.handleReloadServers(ctx, req, input)
	if err != nil {
		return errorResult(err), nil
	}
	return toCallToolResult(output)
}

// errorResult creates an error CallToolResult.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// toCallToolResult converts any output to a CallToolResult with JSON text content.
func toCallToolResult(output any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(output)
	if err != nil {
		return errorResult(err), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}
