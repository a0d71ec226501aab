package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/mcpm/internal/registry"
)

func cmdStatus(args []string) {
	var jsonOut bool
	for _, a := range args {
		switch a {
		case "--help", "-h":
			fmt.Println(`Usage: mcpm status [--json]

Connect to every configured and discovered server and report each one's
state. Sessions are torn down again when the command exits.`)
			return
		case "--json":
			jsonOut = true
		}
	}

	store := newStore()
	reg := newRegistry(store)
	defer reg.Close()

	result, err := reg.DiscoverAndConnect(context.Background())
	if err != nil {
		fatalf("%v", err)
	}

	statuses := reg.Status()
	if jsonOut {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(string(data))
		return
	}

	if len(statuses) == 0 {
		fmt.Println("No MCP servers configured. Run 'mcpm add' to add one.")
		return
	}

	fmt.Printf("%-20s %-6s %-12s %-16s %s\n", "NAME", "TYPE", "STATE", "ORIGIN", "TOOLS")
	for _, st := range statuses {
		fmt.Printf("%-20s %-6s %-12s %-16s %d\n", st.Name, st.Type, st.State, st.Origin, st.ToolCount)
		if st.Error != "" {
			fmt.Printf("%20s   %s\n", "", st.Error)
		}
	}
	fmt.Printf("\n%d connected, %d failed\n", len(result.Connected), len(result.Failed))
}

func cmdTest(args []string) {
	var (
		timeout    string
		positional []string
	)

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--help" || args[i] == "-h":
			fmt.Println(`Usage: mcpm test <name> [--timeout <duration>]

Dial one server, list its tools, and disconnect. The server's tracked
state is untouched, so this is safe while 'mcpm serve' is running.`)
			return
		case args[i] == "--timeout":
			if i+1 < len(args) {
				timeout = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--timeout="):
			timeout = strings.TrimPrefix(args[i], "--timeout=")
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) == 0 {
		fatalf("server name required")
	}
	name := positional[0]

	store := newStore()
	cfg, _, err := store.Find(name)
	if err != nil {
		found := false
		for _, d := range store.Discovered() {
			if d.Name == name {
				cfg = d.Config
				found = true
				break
			}
		}
		if !found {
			fatalf("%v", err)
		}
	}

	if timeout != "" {
		if _, err := time.ParseDuration(timeout); err != nil {
			fatalf("invalid --timeout %q: use Go duration syntax like 30s or 2m", timeout)
		}
		cfg.Timeout = timeout
	}

	reg := newRegistry(store)
	defer reg.Close()

	res, err := reg.TestConnection(context.Background(), name, cfg)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Connection to '%s' OK (%s)\n", name, res.Duration.Round(time.Millisecond))
	fmt.Printf("Tools (%d):\n", len(res.Tools))
	for _, tool := range res.Tools {
		if tool.Description != "" {
			fmt.Printf("  %-28s %s\n", tool.Name, firstLine(tool.Description))
		} else {
			fmt.Printf("  %s\n", tool.Name)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func cmdEnable(args []string) {
	var positional []string
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm enable <name>

Enable a server and connect it. Other servers' connections are untouched.`)
			return
		}
		positional = append(positional, a)
	}
	if len(positional) == 0 {
		fatalf("server name required (mcpm enable <name>)")
	}
	name := positional[0]

	store := newStore()
	reg := newRegistry(store)
	defer reg.Close()

	if err := reg.SetEnabled(context.Background(), name, true); err != nil {
		fatalf("%v", err)
	}

	st := reg.ConnectionStatus(name)
	if st.State == registry.StateConnected {
		fmt.Printf("Enabled '%s' and connected (%d tools)\n", name, st.ToolCount)
	} else {
		fmt.Printf("Enabled '%s'\n", name)
	}
}

func cmdDisable(args []string) {
	var positional []string
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm disable <name>

Disable a server and disconnect it. Owned servers get enabled=false in
their defining scope; discovered servers are suppressed through the user
config's disabled list. Other servers' connections are untouched.`)
			return
		}
		positional = append(positional, a)
	}
	if len(positional) == 0 {
		fatalf("server name required (mcpm disable <name>)")
	}
	name := positional[0]

	store := newStore()
	reg := newRegistry(store)
	defer reg.Close()

	if err := reg.SetEnabled(context.Background(), name, false); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Disabled '%s'\n", name)
}

func cmdReload(args []string) {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm reload

Disconnect every server and reconnect from current configuration. Config
edits, newly discovered servers, and removals all take effect.`)
			return
		}
	}

	store := newStore()
	reg := newRegistry(store)
	defer reg.Close()

	result, err := reg.Reload(context.Background())
	if err != nil {
		fatalf("%v", err)
	}

	connected := append([]string(nil), result.Connected...)
	sort.Strings(connected)
	fmt.Printf("Connected (%d): %s\n", len(connected), strings.Join(connected, ", "))

	if len(result.Failed) > 0 {
		names := make([]string, 0, len(result.Failed))
		for name := range result.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("Failed (%d):\n", len(names))
		for _, name := range names {
			fmt.Printf("  %s: %v\n", name, result.Failed[name])
		}
	}
}
