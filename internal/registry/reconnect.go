package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/standardbeagle/mcpm/internal/config"
)

const (
	// DefaultMaxRetries is used when neither the caller nor the server
	// config sets a retry budget.
	DefaultMaxRetries = 5

	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
)

// newBackOff builds the retry schedule: 1s, 2s, 4s, 8s, 16s, 32s, then a
// 60s ceiling. Randomization is off so the schedule is predictable.
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = InitialBackoff
	b.RandomizationFactor = 0
	b.Multiplier = BackoffMultiplier
	b.MaxInterval = MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// calculateBackoff returns the wait before the given 1-based attempt.
func calculateBackoff(attempt int) time.Duration {
	b := newBackOff()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// GetReconnectAttempts reports how many reconnect attempts the named server
// has made since it last held a stable connection.
func (r *Registry) GetReconnectAttempts(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.states[name]; ok {
		return s.reconnectAttempts
	}
	return 0
}

func (r *Registry) noteReconnectAttempt(name string, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[name]
	if !ok {
		return
	}
	s.state = StateReconnecting
	s.reconnectAttempts = attempt
}

// ReconnectWithBackoff retries a known server's connection with exponential
// backoff. maxRetries <= 0 falls back to the server's configured budget,
// then to DefaultMaxRetries. A config MaxRetries of -1 opts the server out
// of automatic reconnection entirely.
func (r *Registry) ReconnectWithBackoff(ctx context.Context, name string, maxRetries int) error {
	r.mu.RLock()
	s, ok := r.states[name]
	if !ok {
		r.mu.RUnlock()
		return fmt.Errorf("MCP server not configured: %s", name)
	}
	entry := config.Entry{Name: name, Config: s.config, Origin: s.origin}
	r.mu.RUnlock()

	if entry.Config.MaxRetries == -1 {
		return fmt.Errorf("auto-reconnect disabled for %s", name)
	}
	if maxRetries <= 0 {
		maxRetries = entry.Config.MaxRetries
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	bo := newBackOff()
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		r.noteReconnectAttempt(name, attempt)
		lastErr = r.connectAs(ctx, entry, StateReconnecting)
		if lastErr == nil {
			r.logger.Info("MCP server reconnected", "server", name, "attempt", attempt)
			return nil
		}
		if attempt == maxRetries {
			break
		}

		// Show the failed attempt as a reconnect in progress while waiting.
		r.noteReconnectAttempt(name, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return fmt.Errorf("reconnecting %s: %d attempts failed: %w", name, maxRetries, lastErr)
}
