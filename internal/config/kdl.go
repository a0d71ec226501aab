package config

import (
	kdl "github.com/sblinch/kdl-go"
)

// kdlDocument is the raw KDL structure of a slop-mcp project file.
type kdlDocument struct {
	MCPs []kdlServer `kdl:"mcp,multiple"`
}

// kdlServer represents an mcp node in KDL.
type kdlServer struct {
	Name    string            `kdl:",arg"`
	Type    string            `kdl:"type"`
	Command string            `kdl:"command"`
	Args    []string          `kdl:"args"`
	Env     map[string]string `kdl:"env"`
	URL     string            `kdl:"url"`
	Headers map[string]string `kdl:"headers"`
	Timeout string            `kdl:"timeout"`
}

// ParseSlopKDL parses a slop-mcp KDL config file into server entries.
// slop-mcp declares servers as `mcp "name" { type "stdio"; command "..." }`
// nodes; the "command" type alias maps to stdio.
func ParseSlopKDL(data []byte) (map[string]ServerConfig, error) {
	var doc kdlDocument
	if err := kdl.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	servers := make(map[string]ServerConfig, len(doc.MCPs))
	for _, m := range doc.MCPs {
		if m.Name == "" {
			continue
		}
		servers[m.Name] = ServerConfig{
			Type:    m.Type,
			Command: m.Command,
			Args:    m.Args,
			Env:     m.Env,
			URL:     m.URL,
			Headers: m.Headers,
			Timeout: m.Timeout,
		}
	}
	return servers, nil
}
