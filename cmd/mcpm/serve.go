package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/standardbeagle/mcpm/internal/logging"
	"github.com/standardbeagle/mcpm/internal/server"
)

func cmdServe(args []string) {
	port := 0
	healthInterval := ""
	showHelp := false

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--port" || args[i] == "-p":
			if i+1 < len(args) {
				fmt.Sscanf(args[i+1], "%d", &port)
				i++
			}
		case strings.HasPrefix(args[i], "--port="):
			fmt.Sscanf(strings.TrimPrefix(args[i], "--port="), "%d", &port)
		case args[i] == "--health-interval":
			if i+1 < len(args) {
				healthInterval = args[i+1]
				i++
			}
		case strings.HasPrefix(args[i], "--health-interval="):
			healthInterval = strings.TrimPrefix(args[i], "--health-interval=")
		case args[i] == "--help" || args[i] == "-h":
			showHelp = true
		}
	}

	if showHelp {
		printServeUsage()
		return
	}

	store := newStore()
	reg := newRegistry(store)
	srv := server.New(reg, logging.Default())
	defer srv.Close()

	var configured []string
	if desired, err := store.DesiredSet(); err == nil {
		for _, entry := range desired {
			if entry.Config.HealthCheckInterval != "" {
				configured = append(configured, entry.Config.HealthCheckInterval)
			}
		}
	}
	if interval := resolveHealthInterval(configured, healthInterval); interval != "" {
		if err := reg.StartBackgroundHealthCheck(interval); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting health checks: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if port > 0 {
		if err := srv.RunHTTP(ctx, port); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := srv.RunStdio(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// resolveHealthInterval picks the health check cadence: an explicit flag
// wins, otherwise the smallest interval any server config asks for. Empty
// means no background checks.
func resolveHealthInterval(configured []string, flag string) string {
	if flag != "" {
		return flag
	}

	var min time.Duration
	var minStr string
	for _, s := range configured {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			continue
		}
		if minStr == "" || d < min {
			min, minStr = d, s
		}
	}
	return minStr
}

func printServeUsage() {
	fmt.Print(`mcpm serve - Run the aggregate MCP server

Usage:
  mcpm serve [options]

Options:
  --port, -p PORT       Run with SSE/HTTP transport on PORT
                        (default: stdio transport)
  --health-interval D   Probe connected servers every D (e.g. 30s);
                        defaults to the smallest healthCheckInterval
                        found in server configs, or off when none ask
  --help, -h            Show this help

Examples:
  mcpm serve                        # Run with stdio transport
  mcpm serve --port 8080            # Run with HTTP/SSE on port 8080

Configuration:
  Servers come from the user config, the project config, and discovered
  provider files (Claude Desktop, Claude Code, Cursor, Windsurf, slop).
  Run 'mcpm paths' to see the file locations.
`)
}
