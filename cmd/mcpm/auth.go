package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/standardbeagle/mcpm/internal/auth"
	"github.com/standardbeagle/mcpm/internal/cache"
	"github.com/standardbeagle/mcpm/internal/logging"
	"github.com/standardbeagle/mcpm/internal/registry"
)

func cmdAuth(args []string) {
	if len(args) == 0 {
		printAuthUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "login":
		cmdAuthLogin(args[1:])
	case "status":
		cmdAuthStatus(args[1:])
	case "logout":
		cmdAuthLogout(args[1:])
	case "list":
		cmdAuthList(args[1:])
	case "help", "--help", "-h":
		printAuthUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown auth subcommand: %s\n\n", args[0])
		printAuthUsage()
		os.Exit(1)
	}
}

func printAuthUsage() {
	fmt.Println(`Usage: mcpm auth <subcommand>

Subcommands:
  login <name>    Run the OAuth authorization flow for a server
  status <name>   Show the stored credential for a server
  logout <name>   Delete stored credentials for a server
  list            List all stored credentials`)
}

// consoleEvents prints flow progress to the terminal so the user can follow
// the authorization along and paste the URL if the browser did not open.
type consoleEvents struct{}

func (consoleEvents) AuthorizationReady(url, instructions string) {
	fmt.Println()
	fmt.Println(instructions)
	fmt.Println()
	fmt.Printf("    %s\n", url)
	fmt.Println()
}

func (consoleEvents) Progress(message string) {
	fmt.Printf("  %s\n", message)
}

func cmdAuthLogin(args []string) {
	var positional []string
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm auth login <name>

Probe the server first; when it rejects the connection for missing or
expired authorization, run the OAuth flow, store the credential, and
reconnect. A healthy server means there is nothing to do.`)
			return
		}
		positional = append(positional, a)
	}
	if len(positional) == 0 {
		fatalf("server name required (mcpm auth login <name>)")
	}
	name := positional[0]

	store := newStore()
	creds := auth.NewFileStore()
	reg := registry.New(registry.Options{
		Store:       store,
		Credentials: creds,
		ToolCache:   cache.NewStore(),
		Flow:        registry.NewBrowserFlow(consoleEvents{}),
		Logger:      logging.Default(),
	})
	defer reg.Close()

	// The flow waits for the user to approve access in a browser, so a
	// Ctrl-C has to cancel it instead of leaving the callback server up.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	result, err := reg.Reauthorize(ctx, name)
	if err != nil {
		fatalf("%v", err)
	}

	if !result.Required {
		fmt.Printf("'%s' connected without new authorization; nothing to do\n", name)
		return
	}

	fmt.Printf("Authorized '%s'\n", name)
	if result.CredentialID != "" {
		fmt.Printf("  credential: %s\n", result.CredentialID)
	}
	if result.Reconnected {
		fmt.Println("  reconnected")
	}
}

func cmdAuthStatus(args []string) {
	var positional []string
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm auth status <name>

Show the stored credential for one server.`)
			return
		}
		positional = append(positional, a)
	}
	if len(positional) == 0 {
		fatalf("server name required (mcpm auth status <name>)")
	}
	name := positional[0]

	creds := auth.NewFileStore()
	cred, err := creds.FindByServer(name)
	if err != nil {
		fatalf("%v", err)
	}
	if cred == nil {
		fmt.Printf("No stored credentials for '%s'\n", name)
		return
	}

	fmt.Printf("Server:     %s\n", cred.ServerName)
	fmt.Printf("Credential: %s\n", cred.ID)
	if cred.ServerURL != "" {
		fmt.Printf("URL:        %s\n", cred.ServerURL)
	}
	if cred.ClientID != "" {
		fmt.Printf("Client ID:  %s\n", cred.ClientID)
	}
	if cred.Scope != "" {
		fmt.Printf("Scope:      %s\n", cred.Scope)
	}
	fmt.Printf("Refresh:    %v\n", cred.RefreshToken != "")
	fmt.Printf("Expires:    %s\n", describeExpiry(cred))
}

func describeExpiry(cred *auth.Credential) string {
	if cred.ExpiresAt.IsZero() {
		return "never"
	}
	if cred.IsExpired() {
		return fmt.Sprintf("expired (%s)", cred.ExpiresAt.Format(time.RFC3339))
	}
	return cred.ExpiresAt.Format(time.RFC3339)
}

func cmdAuthLogout(args []string) {
	var positional []string
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm auth logout <name>

Delete every stored credential for one server. The server's config keeps
its auth settings; the next connection will need a new 'auth login'.`)
			return
		}
		positional = append(positional, a)
	}
	if len(positional) == 0 {
		fatalf("server name required (mcpm auth logout <name>)")
	}
	name := positional[0]

	creds := auth.NewFileStore()
	all, err := creds.List()
	if err != nil {
		fatalf("%v", err)
	}

	var removed int
	for _, cred := range all {
		if cred.ServerName != name {
			continue
		}
		if err := creds.Remove(cred.ID); err != nil {
			fatalf("removing %s: %v", cred.ID, err)
		}
		removed++
	}

	if removed == 0 {
		fmt.Printf("No stored credentials for '%s'\n", name)
		return
	}
	fmt.Printf("Removed %d credential(s) for '%s'\n", removed, name)
}

func cmdAuthList(args []string) {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Println(`Usage: mcpm auth list

List every stored credential.`)
			return
		}
	}

	creds := auth.NewFileStore()
	all, err := creds.List()
	if err != nil {
		fatalf("%v", err)
	}
	if len(all) == 0 {
		fmt.Println("No stored credentials")
		return
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].ServerName != all[j].ServerName {
			return all[i].ServerName < all[j].ServerName
		}
		return all[i].ID < all[j].ID
	})

	fmt.Printf("%-20s %-32s %-8s %s\n", "SERVER", "CREDENTIAL", "REFRESH", "EXPIRES")
	for _, cred := range all {
		fmt.Printf("%-20s %-32s %-8v %s\n", cred.ServerName, cred.ID, cred.RefreshToken != "", describeExpiry(cred))
	}
}
