package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/mcpm/internal/auth"
	"github.com/standardbeagle/mcpm/internal/config"
)

func cmdAdd(args []string) {
	var (
		scopeStr     = "project"
		transport    string
		url          string
		envPairs     []string
		headerPairs  []string
		authType     string
		clientID     string
		callbackPort int
		timeout      string
		disabled     bool
		positional   []string
	)

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--help" || args[i] == "-h":
			printAddUsage()
			return
		case args[i] == "--scope" || args[i] == "-s":
			if i+1 < len(args) {
				scopeStr = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--scope="):
			scopeStr = strings.TrimPrefix(args[i], "--scope=")
		case args[i] == "--transport" || args[i] == "-t":
			if i+1 < len(args) {
				transport = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--transport="):
			transport = strings.TrimPrefix(args[i], "--transport=")
		case args[i] == "--url":
			if i+1 < len(args) {
				url = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--url="):
			url = strings.TrimPrefix(args[i], "--url=")
		case args[i] == "--env" || args[i] == "-e":
			if i+1 < len(args) {
				envPairs = append(envPairs, args[i+1])
				i++
			}
		case strings.HasPrefix(args[i], "--env="):
			envPairs = append(envPairs, strings.TrimPrefix(args[i], "--env="))
		case args[i] == "--header" || args[i] == "-H":
			if i+1 < len(args) {
				headerPairs = append(headerPairs, args[i+1])
				i++
			}
		case strings.HasPrefix(args[i], "--header="):
			headerPairs = append(headerPairs, strings.TrimPrefix(args[i], "--header="))
		case args[i] == "--auth":
			if i+1 < len(args) {
				authType = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--auth="):
			authType = strings.TrimPrefix(args[i], "--auth=")
		case args[i] == "--client-id":
			if i+1 < len(args) {
				clientID = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--client-id="):
			clientID = strings.TrimPrefix(args[i], "--client-id=")
		case args[i] == "--callback-port":
			if i+1 < len(args) {
				p, err := strconv.Atoi(args[i+1])
				if err != nil {
					fatalf("invalid --callback-port %q", args[i+1])
				}
				callbackPort = p
				i++
			}
		case strings.HasPrefix(args[i], "--callback-port="):
			v := strings.TrimPrefix(args[i], "--callback-port=")
			p, err := strconv.Atoi(v)
			if err != nil {
				fatalf("invalid --callback-port %q", v)
			}
			callbackPort = p
		case args[i] == "--timeout":
			if i+1 < len(args) {
				timeout = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--timeout="):
			timeout = strings.TrimPrefix(args[i], "--timeout=")
		case args[i] == "--disabled":
			disabled = true
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) == 0 {
		fmt.Fprintln(os.Stderr, "Error: server name required")
		printAddUsage()
		os.Exit(1)
	}
	name := positional[0]

	scope, err := config.ParseScope(scopeStr)
	if err != nil {
		fatalf("%v", err)
	}

	if timeout != "" {
		if _, err := time.ParseDuration(timeout); err != nil {
			fatalf("invalid --timeout %q: use Go duration syntax like 30s or 2m", timeout)
		}
	}

	cfg := config.ServerConfig{
		Type:    transport,
		URL:     url,
		Timeout: timeout,
	}
	if len(positional) > 1 {
		cfg.Command = positional[1]
		cfg.Args = positional[2:]
	}
	if cfg.Type == "" {
		cfg.Type = config.InferTransport(cfg)
	}

	if len(envPairs) > 0 {
		cfg.Env = make(map[string]string, len(envPairs))
		for _, pair := range envPairs {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 || kv[0] == "" {
				fatalf("invalid --env %q (want KEY=VALUE)", pair)
			}
			cfg.Env[kv[0]] = kv[1]
		}
	}
	if len(headerPairs) > 0 {
		cfg.Headers = make(map[string]string, len(headerPairs))
		for _, pair := range headerPairs {
			kv := strings.SplitN(pair, ":", 2)
			if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
				fatalf("invalid --header %q (want 'Name: Value')", pair)
			}
			cfg.Headers[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	if authType != "" {
		switch authType {
		case config.AuthTypeOAuth, config.AuthTypeAPIKey:
			cfg.Auth = &config.AuthConfig{Type: authType}
		default:
			fatalf("invalid --auth %q (want oauth or apikey)", authType)
		}
	}
	if clientID != "" || callbackPort != 0 {
		cfg.OAuth = &config.OAuthOptions{ClientID: clientID, CallbackPort: callbackPort}
	}
	if disabled {
		off := false
		cfg.Enabled = &off
	}

	store := newStore()
	if err := store.Add(scope, name, cfg); err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Added MCP server '%s' to %s config\n", name, scope)
	fmt.Printf("  %s\n", config.ConfigPathForScope(scope, workingDir()))
}

func printAddUsage() {
	fmt.Println(`Usage: mcpm add <name> [command] [args...] [flags]

Add an MCP server to a config scope. Stdio servers take a command and
arguments; http and sse servers take --url. When --transport is omitted it
is inferred: a command means stdio, a URL containing /sse means sse, any
other URL means http.

Flags:
  -s, --scope <user|project>   Config scope to write (default: project)
  -t, --transport <type>       stdio, http, or sse
      --url <url>              Endpoint URL for http and sse servers
  -e, --env KEY=VALUE          Environment variable (repeatable)
  -H, --header 'Name: Value'   HTTP header (repeatable)
      --auth <oauth|apikey>    Authorization type
      --client-id <id>         Pre-registered OAuth client id
      --callback-port <port>   Fixed OAuth callback port
      --timeout <duration>     Connection timeout, e.g. 30s
      --disabled               Add without connecting on startup

Examples:
  mcpm add github npx -y @modelcontextprotocol/server-github
  mcpm add search --url https://search.example.com/mcp --auth oauth
  mcpm add linear --url https://mcp.linear.app/sse --scope user`)
}

func cmdRemove(args []string) {
	var (
		scopeStr   string
		positional []string
	)

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--help" || args[i] == "-h":
			fmt.Println(`Usage: mcpm remove <name> [--scope <user|project>]

Remove an MCP server from config. Without --scope the owning scope is
located automatically. Discovered servers cannot be removed; disable them
instead.`)
			return
		case args[i] == "--scope" || args[i] == "-s":
			if i+1 < len(args) {
				scopeStr = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--scope="):
			scopeStr = strings.TrimPrefix(args[i], "--scope=")
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) == 0 {
		fatalf("server name required")
	}
	name := positional[0]
	store := newStore()

	var scope config.Scope
	if scopeStr != "" {
		s, err := config.ParseScope(scopeStr)
		if err != nil {
			fatalf("%v", err)
		}
		scope = s
	} else {
		_, s, err := store.Find(name)
		if err != nil {
			for _, d := range store.Discovered() {
				if d.Name == name {
					fatalf("'%s' comes from %s and cannot be removed; run 'mcpm disable %s' to suppress it", name, d.Source.Provider, name)
				}
			}
			fatalf("%v", err)
		}
		scope = s
	}

	if err := store.Remove(scope, name); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Removed MCP server '%s' from %s config\n", name, scope)
}

func cmdGet(args []string) {
	var (
		jsonOut    bool
		positional []string
	)

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--help" || args[i] == "-h":
			fmt.Println(`Usage: mcpm get <name> [--json]

Show one server's configuration, whether owned or discovered.`)
			return
		case args[i] == "--json":
			jsonOut = true
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) == 0 {
		fatalf("server name required")
	}
	name := positional[0]
	store := newStore()

	cfg, scope, err := store.Find(name)
	origin := config.Origin{Scope: scope, Path: config.ConfigPathForScope(scope, workingDir())}
	if err != nil {
		found := false
		for _, d := range store.Discovered() {
			if d.Name == name {
				cfg, origin = d.Config, d.Source
				found = true
				break
			}
		}
		if !found {
			fatalf("%v", err)
		}
	}

	if jsonOut {
		fmt.Println(cfg.ToJSON())
		return
	}

	fmt.Printf("Name:      %s\n", name)
	fmt.Printf("Origin:    %s (%s)\n", origin, origin.Path)
	fmt.Printf("Type:      %s\n", cfg.Type)
	if cfg.Command != "" {
		fmt.Printf("Command:   %s\n", cfg.Command)
	}
	if len(cfg.Args) > 0 {
		fmt.Printf("Args:      %s\n", strings.Join(cfg.Args, " "))
	}
	if cfg.URL != "" {
		fmt.Printf("URL:       %s\n", cfg.URL)
	}
	for _, k := range sortedKeys(cfg.Env) {
		fmt.Printf("Env:       %s=%s\n", k, cfg.Env[k])
	}
	for _, k := range sortedKeys(cfg.Headers) {
		fmt.Printf("Header:    %s: %s\n", k, cfg.Headers[k])
	}
	if cfg.Auth != nil {
		fmt.Printf("Auth:      %s\n", cfg.Auth.Type)
		if cfg.Auth.CredentialID != "" {
			fmt.Printf("Credential: %s\n", cfg.Auth.CredentialID)
		}
	}
	if cfg.OAuth != nil {
		if cfg.OAuth.ClientID != "" {
			fmt.Printf("Client ID: %s\n", cfg.OAuth.ClientID)
		}
		if cfg.OAuth.CallbackPort != 0 {
			fmt.Printf("Callback:  port %d\n", cfg.OAuth.CallbackPort)
		}
	}
	if cfg.Timeout != "" {
		fmt.Printf("Timeout:   %s\n", cfg.Timeout)
	}
	fmt.Printf("Enabled:   %v\n", cfg.IsEnabled())
}

func cmdList(args []string) {
	var (
		verbose bool
		jsonOut bool
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			fmt.Println(`Usage: mcpm list [--verbose] [--json]

List servers from the user config, the project config, and every
discovered provider file.`)
			return
		case "--verbose", "-V":
			verbose = true
		case "--json":
			jsonOut = true
		}
	}

	store := newStore()
	cwd := workingDir()
	disabled, _ := store.DisabledNames(config.ScopeUser)
	discovered := store.Discovered()

	if jsonOut {
		out := make(map[string]any)
		for _, scope := range config.Scopes() {
			doc, err := store.Read(scope)
			if err != nil {
				continue
			}
			out[scope.String()] = doc.MCPServers
		}
		discoveredMap := make(map[string]config.ServerConfig, len(discovered))
		for _, d := range discovered {
			discoveredMap[d.Name] = d.Config
		}
		out["discovered"] = discoveredMap
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(string(data))
		return
	}

	for _, scope := range config.Scopes() {
		label := "User"
		if scope == config.ScopeProject {
			label = "Project"
		}
		fmt.Printf("%s config (%s):\n", label, config.ConfigPathForScope(scope, cwd))
		doc, err := store.Read(scope)
		if err != nil {
			fmt.Printf("  (unreadable: %v)\n\n", err)
			continue
		}
		if len(doc.MCPServers) == 0 {
			fmt.Println("  (none)")
			fmt.Println()
			continue
		}
		for _, name := range sortedServerNames(doc.MCPServers) {
			cfg := doc.MCPServers[name]
			printServerLine(name, cfg, !cfg.IsEnabled(), "")
			if verbose {
				printServerDetail(cfg)
			}
		}
		fmt.Println()
	}

	fmt.Println("Discovered:")
	if len(discovered) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, d := range discovered {
		printServerLine(d.Name, d.Config, disabled[d.Name], d.Source.Provider)
		if verbose {
			printServerDetail(d.Config)
		}
	}
}

func printServerLine(name string, cfg config.ServerConfig, disabled bool, provider string) {
	target := cfg.URL
	if cfg.Type == config.TransportStdio {
		target = strings.TrimSpace(cfg.Command + " " + strings.Join(cfg.Args, " "))
	}
	line := fmt.Sprintf("  %-20s %-6s %s", name, cfg.Type, target)
	if provider != "" {
		line += fmt.Sprintf("  [%s]", provider)
	}
	if disabled {
		line += "  (disabled)"
	}
	fmt.Println(line)
}

func printServerDetail(cfg config.ServerConfig) {
	for _, k := range sortedKeys(cfg.Env) {
		fmt.Printf("%25s env %s=%s\n", "", k, cfg.Env[k])
	}
	for _, k := range sortedKeys(cfg.Headers) {
		fmt.Printf("%25s header %s: %s\n", "", k, cfg.Headers[k])
	}
	if cfg.Auth != nil {
		fmt.Printf("%25s auth %s\n", "", cfg.Auth.Type)
	}
	if cfg.Timeout != "" {
		fmt.Printf("%25s timeout %s\n", "", cfg.Timeout)
	}
}

func cmdImport(args []string) {
	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			fmt.Println(`Usage: mcpm import <provider> [names...]

Copy discovered servers from a provider file into the user config so they
survive even when the provider file changes. Without names, every server
from that provider is imported.

Providers: claude-desktop, claude-code, cursor, windsurf, slop`)
			return
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) == 0 {
		fatalf("provider name required (one of: %s)", strings.Join(providerNames(), ", "))
	}
	provider := positional[0]
	wanted := positional[1:]

	known := providerNames()
	if !contains(known, provider) {
		fatalf("unknown provider %q (one of: %s)", provider, strings.Join(known, ", "))
	}

	store := newStore()
	var candidates []config.DiscoveredServer
	for _, d := range store.Discovered() {
		if d.Source.Provider != provider {
			continue
		}
		if len(wanted) > 0 && !contains(wanted, d.Name) {
			continue
		}
		candidates = append(candidates, d)
	}

	if len(candidates) == 0 {
		fatalf("no servers found for provider %q", provider)
	}

	var added int
	for _, d := range candidates {
		if err := store.Add(config.ScopeUser, d.Name, d.Config); err != nil {
			var dup *config.DuplicateServerError
			if errors.As(err, &dup) {
				fmt.Printf("  skipped '%s' (already in %s config)\n", d.Name, dup.Scope)
				continue
			}
			fatalf("importing '%s': %v", d.Name, err)
		}
		fmt.Printf("  imported '%s'\n", d.Name)
		added++
	}
	fmt.Printf("Imported %d server(s) from %s into user config\n", added, provider)
}

func providerNames() []string {
	providers := config.DefaultProviders(workingDir())
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	return names
}

func cmdPaths(args []string) {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm paths

Show every config file location this tool reads, and whether it exists.`)
			return
		}
	}

	cwd := workingDir()
	paths := config.ConfigPaths(cwd)
	order := []struct{ key, label string }{
		{"user", "user"},
		{"project", "project"},
		{"claude_desktop", "claude-desktop"},
		{"claude_code", "claude-code"},
		{"cursor", "cursor"},
		{"windsurf", "windsurf"},
		{"slop", "slop"},
	}

	fmt.Println("Config files:")
	for _, o := range order {
		path := paths[o.key]
		marker := ""
		if _, err := os.Stat(path); err == nil {
			marker = "  (exists)"
		}
		fmt.Printf("  %-16s %s%s\n", o.label, path, marker)
	}

	credPath := auth.NewFileStore().Path()
	marker := ""
	if _, err := os.Stat(credPath); err == nil {
		marker = "  (exists)"
	}
	fmt.Printf("  %-16s %s%s\n", "credentials", credPath, marker)
}

func cmdDump(args []string) {
	var (
		scopeStr string
		jsonOut  bool
	)

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--help" || args[i] == "-h":
			fmt.Println(`Usage: mcpm dump [--scope <user|project>] [--json]

Print config file contents. Without --scope every readable file is dumped,
provider files included. With --json the parsed server map is printed
instead of the raw file.`)
			return
		case args[i] == "--scope" || args[i] == "-s":
			if i+1 < len(args) {
				scopeStr = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--scope="):
			scopeStr = strings.TrimPrefix(args[i], "--scope=")
		case args[i] == "--json":
			jsonOut = true
		}
	}

	cwd := workingDir()

	if scopeStr != "" {
		scope, err := config.ParseScope(scopeStr)
		if err != nil {
			fatalf("%v", err)
		}
		dumpFile(scope.String(), config.ConfigPathForScope(scope, cwd), jsonOut, config.ParseMCPServersDoc)
		return
	}

	dumpFile("user", config.UserConfigPath(), jsonOut, config.ParseMCPServersDoc)
	dumpFile("project", config.ProjectConfigPath(cwd), jsonOut, config.ParseMCPServersDoc)
	for _, p := range config.DefaultProviders(cwd) {
		dumpFile(p.Name, p.Path, jsonOut, p.Parse)
	}
}

func dumpFile(label, path string, jsonOut bool, parse func([]byte) (map[string]config.ServerConfig, error)) {
	fmt.Printf("=== %s: %s ===\n", label, path)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("(missing)")
		fmt.Println()
		return
	}

	if jsonOut {
		servers, err := parse(data)
		if err != nil {
			fmt.Printf("(unparseable: %v)\n\n", err)
			return
		}
		out, err := json.MarshalIndent(servers, "", "  ")
		if err != nil {
			fmt.Printf("(unparseable: %v)\n\n", err)
			return
		}
		fmt.Println(string(out))
	} else {
		fmt.Println(strings.TrimRight(string(data), "\n"))
	}
	fmt.Println()
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedServerNames(m map[string]config.ServerConfig) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
