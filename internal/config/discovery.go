package config

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// Provider is a third-party config file scanned for MCP servers. Discovered
// entries are read-only: this tool never writes a provider's file, it can
// only suppress entries via the disabled side-list.
type Provider struct {
	Name  string
	Path  string
	Parse func(data []byte) (map[string]ServerConfig, error)
}

// DiscoveredServer is a server found in a provider's file.
type DiscoveredServer struct {
	Name   string
	Config ServerConfig
	Source Origin
}

// DefaultProviders returns the providers scanned by default, in shadowing
// order (earlier providers win name collisions).
func DefaultProviders(projectDir string) []Provider {
	return []Provider{
		{Name: "claude-desktop", Path: ClaudeDesktopConfigPath(), Parse: ParseMCPServersDoc},
		{Name: "claude-code", Path: ClaudeCodeConfigPath(), Parse: ParseMCPServersDoc},
		{Name: "cursor", Path: CursorConfigPath(), Parse: ParseMCPServersDoc},
		{Name: "windsurf", Path: WindsurfConfigPath(), Parse: ParseMCPServersDoc},
		{Name: "slop", Path: SlopConfigPath(projectDir), Parse: ParseSlopKDL},
	}
}

// Discovered scans all providers and returns their servers. Providers that
// are missing, unreadable, or unparseable are skipped: foreign files change
// shape without notice and must never break reconciliation.
func (s *Store) Discovered() []DiscoveredServer {
	var out []DiscoveredServer
	seen := make(map[string]bool)

	for _, p := range s.providers {
		if p.Path == "" {
			continue
		}
		data, err := os.ReadFile(p.Path)
		if err != nil {
			continue
		}
		servers, err := p.Parse(data)
		if err != nil {
			s.logger.Debug("skipping unparseable provider config", "provider", p.Name, "path", p.Path, "error", err)
			continue
		}

		names := make([]string, 0, len(servers))
		for name := range servers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			cfg := servers[name]
			cfg.Type = InferTransport(cfg)
			out = append(out, DiscoveredServer{
				Name:   name,
				Config: cfg,
				Source: Origin{Provider: p.Name, Path: p.Path},
			})
		}
	}

	return out
}

// ParseMCPServersDoc parses the common {"mcpServers": {...}} document shape
// shared by Claude Desktop, Claude Code, Cursor, and Windsurf. Unknown fields
// are ignored.
func ParseMCPServersDoc(data []byte) (map[string]ServerConfig, error) {
	var doc struct {
		MCPServers map[string]ServerConfig `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.MCPServers == nil {
		return map[string]ServerConfig{}, nil
	}
	return doc.MCPServers, nil
}

// InferTransport normalizes a config's transport type. Foreign files often
// omit the type or use aliases: a command implies stdio, a URL containing
// "/sse" implies sse, any other URL implies http.
func InferTransport(cfg ServerConfig) string {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TransportStdio, "command":
		return TransportStdio
	case TransportSSE:
		return TransportSSE
	case TransportHTTP, "streamable", "streamable-http", "streamable_http":
		return TransportHTTP
	}

	if cfg.Command != "" {
		return TransportStdio
	}
	if cfg.URL != "" {
		if strings.Contains(strings.ToLower(cfg.URL), "/sse") {
			return TransportSSE
		}
		return TransportHTTP
	}
	return cfg.Type
}
