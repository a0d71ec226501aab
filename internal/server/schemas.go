package server

import "encoding/json"

// Tool schemas are handwritten literals. The SDK's generated schemas use
// patterns like "type": ["null", "object"] that strict client validators
// reject.

// searchToolsInputSchema is the input schema for search_tools.
var searchToolsInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Search query for tool names and descriptions"
		},
		"server": {
			"type": "string",
			"description": "Restrict results to a single MCP server"
		},
		"limit": {
			"type": "integer",
			"description": "Maximum number of results to return (default: 20, max: 100)"
		},
		"offset": {
			"type": "integer",
			"description": "Number of results to skip for pagination (default: 0)"
		}
	},
	"additionalProperties": false
}`)

// searchToolsOutputSchema is the output schema for search_tools.
var searchToolsOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"tools": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"description": {"type": "string"},
					"server": {"type": "string"},
					"input_schema": {"type": "object", "additionalProperties": true}
				},
				"required": ["name", "description", "server"]
			}
		},
		"total": {"type": "integer", "description": "Total number of matching tools before pagination"},
		"limit": {"type": "integer", "description": "Limit applied to results"},
		"offset": {"type": "integer", "description": "Offset applied to results"},
		"has_more": {"type": "boolean", "description": "True if more results are available beyond this page"}
	},
	"required": ["tools", "total", "limit", "offset", "has_more"],
	"additionalProperties": false
}`)

// executeToolInputSchema is the input schema for execute_tool.
var executeToolInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"server": {
			"type": "string",
			"description": "Target MCP server name"
		},
		"tool": {
			"type": "string",
			"description": "Tool to execute on the server"
		},
		"parameters": {
			"type": "object",
			"description": "Tool parameters to pass through",
			"additionalProperties": true
		}
	},
	"required": ["server", "tool"],
	"additionalProperties": false
}`)

// executeToolOutputSchema - execute_tool returns pass-through results, so the
// schema stays open.
var executeToolOutputSchema = json.RawMessage(`{
	"type": "object",
	"additionalProperties": true
}`)

// reloadServersInputSchema is the input schema for reload_servers.
var reloadServersInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {},
	"additionalProperties": false
}`)

// reloadServersOutputSchema is the output schema for reload_servers.
var reloadServersOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"message": {"type": "string"},
		"connected": {
			"type": "array",
			"items": {"type": "string"}
		},
		"failed": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	},
	"required": ["message"],
	"additionalProperties": false
}`)
