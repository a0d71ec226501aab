package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/standardbeagle/mcpm/internal/cache"
	"github.com/standardbeagle/mcpm/internal/config"
	"github.com/standardbeagle/mcpm/internal/connector"
)

// TestResult reports a successful probe connection.
type TestResult struct {
	Tools    []connector.Tool
	Duration time.Duration
}

// TestConnection dials a server, lists its tools, and tears the session
// down again. The registry's tracked state is never touched, so a probe can
// run against an unsaved config.
func (r *Registry) TestConnection(ctx context.Context, name string, cfg config.ServerConfig) (*TestResult, error) {
	prepared, err := r.resolver.Prepare(name, cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, GetConnectionTimeout(cfg))
	defer cancel()

	session, err := r.dialer.Connect(dialCtx, name, prepared)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	tools, err := session.Tools(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("connected to %s but could not list tools: %w", name, err)
	}

	return &TestResult{Tools: tools, Duration: time.Since(start)}, nil
}

// connectOne dials a single server and records the outcome. The dial runs
// outside the registry lock so slow servers do not stall status reads.
func (r *Registry) connectOne(ctx context.Context, entry config.Entry) error {
	return r.connectAs(ctx, entry, StateConnecting)
}

func (r *Registry) connectAs(ctx context.Context, entry config.Entry, transitional ConnState) error {
	name := entry.Name
	r.setConnecting(name, entry.Config, entry.Origin, transitional)

	prepared, err := r.resolver.Prepare(name, entry.Config)
	if err != nil {
		r.setFailed(name, err)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, GetConnectionTimeout(entry.Config))
	defer cancel()

	session, err := r.dialer.Connect(dialCtx, name, prepared)
	if err != nil {
		r.setFailed(name, err)
		return err
	}

	tools, err := session.Tools(dialCtx)
	if err != nil {
		session.Close()
		err = fmt.Errorf("connected to %s but could not list tools: %w", name, err)
		r.setFailed(name, err)
		return err
	}

	r.setConnected(name, session, tools)
	r.cacheTools(name, entry.Config, tools)
	r.logger.Info("MCP server connected", "server", name, "tools", len(tools))
	return nil
}

func (r *Registry) cacheTools(name string, cfg config.ServerConfig, tools []connector.Tool) {
	if r.toolCache == nil {
		return
	}
	cached := make([]cache.CachedTool, 0, len(tools))
	for _, t := range tools {
		cached = append(cached, cache.CachedTool{
			Name:        t.Name,
			Description: t.Description,
			Server:      name,
			InputSchema: t.InputSchema,
		})
	}
	entry := &cache.Entry{
		ConfigHash: cache.ConfigHash(cfg),
		ServerName: name,
		Tools:      cached,
		CachedAt:   time.Now(),
	}
	if err := r.toolCache.SetEntry(name, entry); err != nil {
		r.logger.Debug("could not cache tool listing", "server", name, "error", err)
	}
}

// ReconcileResult aggregates one connection round. Failed carries earlier
// errors forward until a later attempt on the same name supersedes them.
type ReconcileResult struct {
	Connected []string
	Failed    map[string]error
}

// ConnectServers dials every entry concurrently. One server failing never
// stops the others; each failure lands in the result keyed by name.
func (r *Registry) ConnectServers(ctx context.Context, entries map[string]config.Entry, existing map[string]error) *ReconcileResult {
	result := &ReconcileResult{Failed: make(map[string]error)}
	for name, err := range existing {
		result.Failed[name] = err
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, entry := range entries {
		wg.Add(1)
		go func(entry config.Entry) {
			defer wg.Done()
			err := r.connectOne(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[entry.Name] = err
				return
			}
			delete(result.Failed, entry.Name)
			result.Connected = append(result.Connected, entry.Name)
		}(entry)
	}
	wg.Wait()

	sort.Strings(result.Connected)
	return result
}

// DiscoverAndConnect reconciles the registry against the configured set:
// servers no longer configured are dropped, new or changed servers are
// dialed, and healthy connections with unchanged configs are left alone.
func (r *Registry) DiscoverAndConnect(ctx context.Context) (*ReconcileResult, error) {
	desired, err := r.store.DesiredSet()
	if err != nil {
		return nil, fmt.Errorf("reading server configs: %w", err)
	}

	for _, name := range r.AllServerNames() {
		if _, ok := desired[name]; !ok {
			r.forget(name)
			if r.toolCache != nil {
				r.toolCache.RemoveEntry(name)
			}
		}
	}

	pending := make(map[string]config.Entry)
	existing := make(map[string]error)
	kept := make([]string, 0)

	r.mu.RLock()
	for name, entry := range desired {
		s, ok := r.states[name]
		if ok && s.state == StateConnected && s.session != nil &&
			cache.ConfigHash(s.config) == cache.ConfigHash(entry.Config) {
			kept = append(kept, name)
			continue
		}
		if ok && s.err != nil {
			existing[name] = s.err
		}
		pending[name] = entry
	}
	r.mu.RUnlock()

	// A changed config needs a fresh dial, not a second session.
	for name, entry := range pending {
		if _, live := r.session(name); live {
			r.DisconnectServer(ctx, name)
		}
		r.SetConfigured(name, entry.Config, entry.Origin)
	}

	result := r.ConnectServers(ctx, pending, existing)
	result.Connected = append(result.Connected, kept...)
	sort.Strings(result.Connected)
	return result, nil
}

// Reload tears every connection down and reconciles from config again. New
// and edited servers in the files take effect; in-flight tool calls on old
// sessions fail and callers retry.
func (r *Registry) Reload(ctx context.Context) (*ReconcileResult, error) {
	if err := r.DisconnectAll(ctx); err != nil {
		return nil, err
	}
	return r.DiscoverAndConnect(ctx)
}

// SetEnabled flips one server on or off, persists the change, and adjusts
// only that server's connection. Owned servers get the enabled flag in
// their defining scope; discovered servers are suppressed through the
// user-scope disabled list.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	cfg, scope, err := r.store.Find(name)
	switch {
	case err == nil:
		if enabled {
			cfg.Enabled = nil
		} else {
			off := false
			cfg.Enabled = &off
		}
		if err := r.store.Update(scope, name, cfg); err != nil {
			return err
		}
	case isNotFound(err):
		if !r.isDiscovered(name) {
			return err
		}
		if err := r.store.SetDisabled(config.ScopeUser, name, !enabled); err != nil {
			return err
		}
	default:
		return err
	}

	if !enabled {
		r.forget(name)
		if r.toolCache != nil {
			r.toolCache.RemoveEntry(name)
		}
		return nil
	}

	desired, err := r.store.DesiredSet()
	if err != nil {
		return fmt.Errorf("reading server configs: %w", err)
	}
	entry, ok := desired[name]
	if !ok {
		// Enabled here but shadowed by another scope's copy of the name.
		return nil
	}
	return r.connectOne(ctx, entry)
}

func (r *Registry) isDiscovered(name string) bool {
	for _, d := range r.store.Discovered() {
		if d.Name == name {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var nf *config.ServerNotFoundError
	return errors.As(err, &nf)
}

// WaitForConnection polls until the named server settles out of a
// transitional state or the timeout passes, and returns whatever status it
// reached. The timeout is the caller's patience, not a verdict on the
// server.
func (r *Registry) WaitForConnection(ctx context.Context, name string, timeout time.Duration) ServerStatus {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		status := r.ConnectionStatus(name)
		if status.State != StateConnecting && status.State != StateReconnecting {
			return status
		}
		select {
		case <-ctx.Done():
			return r.ConnectionStatus(name)
		case <-deadline.C:
			return r.ConnectionStatus(name)
		case <-tick.C:
		}
	}
}
