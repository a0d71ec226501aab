// Command mcpm manages MCP server configurations and runs the aggregate
// server that exposes every connected server's tools behind one endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/standardbeagle/mcpm/internal/cache"
	"github.com/standardbeagle/mcpm/internal/config"
	"github.com/standardbeagle/mcpm/internal/logging"
	"github.com/standardbeagle/mcpm/internal/registry"
)

const version = "0.2.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		cmdAdd(os.Args[2:])
	case "remove", "rm":
		cmdRemove(os.Args[2:])
	case "get":
		cmdGet(os.Args[2:])
	case "list", "ls":
		cmdList(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "test":
		cmdTest(os.Args[2:])
	case "enable":
		cmdEnable(os.Args[2:])
	case "disable":
		cmdDisable(os.Args[2:])
	case "reload":
		cmdReload(os.Args[2:])
	case "auth":
		cmdAuth(os.Args[2:])
	case "import":
		cmdImport(os.Args[2:])
	case "paths":
		cmdPaths(os.Args[2:])
	case "dump":
		cmdDump(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("mcpm %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`mcpm - MCP server manager

Usage:
  mcpm <command> [arguments]

Configuration:
  add <name> [command] [args...]  Add an MCP server to a config scope
  remove <name>                   Remove an MCP server from config
  get <name>                      Show one server's configuration
  list                            List configured and discovered servers
  import <provider> [names...]    Copy discovered servers into user config
  paths                           Show config file locations
  dump                            Print raw config file contents

Connections:
  status                          Connect to all servers and show their state
  test <name>                     Test the connection to one server
  enable <name>                   Enable a disabled server and connect it
  disable <name>                  Disable a server
  reload                          Reconnect every server from current config

Authorization:
  auth login <name>               Run the OAuth flow for a server
  auth status <name>              Show stored credentials for a server
  auth logout <name>              Delete stored credentials for a server
  auth list                       List all stored credentials

Server:
  serve                           Run the aggregate MCP server (stdio or HTTP)

Other:
  version                         Print version
  help                            Show this help

Run 'mcpm <command> --help' for command-specific flags.`)
}

func workingDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		fatalf("cannot determine working directory: %v", err)
	}
	return cwd
}

// newStore builds the config store rooted at the current directory. Every
// command that touches config goes through here so they all agree on which
// project file applies.
func newStore() *config.Store {
	return config.NewStore(workingDir())
}

func newRegistry(store *config.Store) *registry.Registry {
	return registry.New(registry.Options{
		Store:     store,
		ToolCache: cache.NewStore(),
		Logger:    logging.Default(),
	})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
