package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	ProjectConfigFile = ".mcpm.json"
	UserConfigDir     = "mcpm"
	UserConfigFile    = "config.json"
)

// UserConfigPath returns the path to the user scope document.
func UserConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, UserConfigDir, UserConfigFile)
}

// ProjectConfigPath returns the path to the project scope document.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ProjectConfigFile)
}

// ConfigPathForScope returns the document path for a given scope.
func ConfigPathForScope(scope Scope, projectDir string) string {
	switch scope {
	case ScopeUser:
		return UserConfigPath()
	case ScopeProject:
		return ProjectConfigPath(projectDir)
	default:
		return ProjectConfigPath(projectDir)
	}
}

// ClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func ClaudeDesktopConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json")
	default: // linux
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			configDir = filepath.Join(home, ".config")
		}
		return filepath.Join(configDir, "Claude", "claude_desktop_config.json")
	}
}

// ClaudeCodeConfigPath returns the path to Claude Code's main config file.
func ClaudeCodeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude.json")
}

// CursorConfigPath returns the path to Cursor's MCP config file.
func CursorConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cursor", "mcp.json")
}

// WindsurfConfigPath returns the path to Windsurf's MCP config file.
func WindsurfConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codeium", "windsurf", "mcp_config.json")
}

// SlopConfigPath returns the path to a slop-mcp project config file, which
// declares MCP servers in KDL.
func SlopConfigPath(dir string) string {
	return filepath.Join(dir, ".slop-mcp.kdl")
}

// ConfigPaths returns all config file paths this tool reads, keyed by a
// display label. Used by the paths command.
func ConfigPaths(projectDir string) map[string]string {
	return map[string]string{
		"user":           UserConfigPath(),
		"project":        ProjectConfigPath(projectDir),
		"claude_desktop": ClaudeDesktopConfigPath(),
		"claude_code":    ClaudeCodeConfigPath(),
		"cursor":         CursorConfigPath(),
		"windsurf":       WindsurfConfigPath(),
		"slop":           SlopConfigPath(projectDir),
	}
}
