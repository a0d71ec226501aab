package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/standardbeagle/mcpm/internal/connector"
)

// HealthStatus is the outcome of the most recent liveness probe.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "unknown"
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const (
	// DefaultHealthCheckTimeout bounds one probe.
	DefaultHealthCheckTimeout = 5 * time.Second

	// DefaultHealthCheckInterval of zero leaves background checks off.
	DefaultHealthCheckInterval = 0
)

// HealthCheckResult is one probe outcome.
type HealthCheckResult struct {
	Name         string       `json:"name"`
	Status       HealthStatus `json:"status"`
	ResponseTime string       `json:"response_time,omitempty"`
	Error        string       `json:"error,omitempty"`
	CheckedAt    time.Time    `json:"checked_at"`
}

// HealthCheck probes live sessions. An empty name probes every connected
// server; returns nil when nothing is connected or the context is already
// done.
func (r *Registry) HealthCheck(ctx context.Context, name string) []HealthCheckResult {
	if ctx.Err() != nil {
		return nil
	}

	type target struct {
		name    string
		session connector.Session
	}
	r.mu.RLock()
	var targets []target
	for n, s := range r.states {
		if name != "" && n != name {
			continue
		}
		if s.session == nil {
			continue
		}
		targets = append(targets, target{n, s.session})
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].name < targets[j].name })

	results := make([]HealthCheckResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, r.checkOne(ctx, t.name, t.session))
	}
	return results
}

func (r *Registry) checkOne(ctx context.Context, name string, session connector.Session) HealthCheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, DefaultHealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := session.Ping(probeCtx)
	elapsed := time.Since(start)

	res := HealthCheckResult{
		Name:         name,
		Status:       HealthStatusHealthy,
		ResponseTime: elapsed.Round(time.Millisecond).String(),
		CheckedAt:    time.Now(),
	}
	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Error = err.Error()
	}
	r.updateHealthState(name, res.Status, res.CheckedAt, err)
	return res
}

// GetHealthStatus reports the last probe outcome for a name. Unknown names
// report HealthStatusUnknown with a zero time.
func (r *Registry) GetHealthStatus(name string) (HealthStatus, time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[name]
	if !ok {
		return HealthStatusUnknown, time.Time{}, nil
	}
	status := s.healthStatus
	if status == "" {
		status = HealthStatusUnknown
	}
	return status, s.lastHealthCheck, s.healthError
}

func (r *Registry) updateHealthState(name string, status HealthStatus, checkedAt time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[name]
	if !ok {
		return
	}
	s.healthStatus = status
	s.lastHealthCheck = checkedAt
	s.healthError = err
}

// StartBackgroundHealthCheck probes every connected server on the given
// interval. Empty, zero, or negative intervals leave checks disabled. A
// running loop is replaced.
func (r *Registry) StartBackgroundHealthCheck(interval string) error {
	d, err := parseHealthInterval(interval)
	if err != nil {
		return err
	}

	r.StopBackgroundHealthCheck()
	if d <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.mu.Lock()
	r.healthCheckCancel = cancel
	r.healthCheckDone = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, res := range r.HealthCheck(ctx, "") {
					if res.Status == HealthStatusUnhealthy {
						r.logger.Warn("health check failed", "server", res.Name, "error", res.Error)
					}
				}
			}
		}
	}()
	return nil
}

// StopBackgroundHealthCheck stops the probe loop and waits for it to exit.
// Safe to call when no loop is running.
func (r *Registry) StopBackgroundHealthCheck() {
	r.mu.Lock()
	cancel := r.healthCheckCancel
	done := r.healthCheckDone
	r.healthCheckCancel = nil
	r.healthCheckDone = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func parseHealthInterval(interval string) (time.Duration, error) {
	if interval == "" || interval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid health check interval %q: %w", interval, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
