// Package handlers contains the health checking used by the worker's HTTP surface.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/skill-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// HealthCheckFunc performs a single check and returns an error if it fails.
type HealthCheckFunc func(ctx context.Context) error

// Pinger is satisfied by stores and caches that can test their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a HealthCheckFunc.
func PingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// HealthStatus represents the overall health of the worker.
type HealthStatus struct {
	// Ready is false when a critical check failed.
	Ready bool `json:"ready"`

	// Degraded is true when only optional checks failed.
	Degraded bool `json:"degraded"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult represents the result of a single check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

type namedCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker runs registered checks concurrently, each under its own timeout.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]namedCheck
	started time.Time
	version string
	timeout time.Duration
	now     timeutil.Clock
}

// NewHealthChecker creates a checker with a 5s per-check timeout.
func NewHealthChecker(version string, clock timeutil.Clock) *HealthChecker {
	if clock == nil {
		clock = timeutil.UTC
	}
	return &HealthChecker{
		checks:  make(map[string]namedCheck),
		started: clock(),
		version: version,
		timeout: 5 * time.Second,
		now:     clock,
	}
}

// SetTimeout sets the timeout for individual checks.
func (c *HealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// AddCheck registers a critical check: its failure makes the worker not ready.
func (c *HealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.add(name, fn, true)
}

// AddOptionalCheck registers a check whose failure only degrades the worker.
func (c *HealthChecker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.add(name, fn, false)
}

func (c *HealthChecker) add(name string, fn HealthCheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = namedCheck{fn: fn, critical: critical}
}

// RemoveCheck removes a named check.
func (c *HealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Uptime returns how long ago the checker was created.
func (c *HealthChecker) Uptime() time.Duration {
	return c.now().Sub(c.started)
}

// Check runs every check and aggregates the results.
func (c *HealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]namedCheck, len(c.checks))
	for name, nc := range c.checks {
		checks[name] = nc
	}
	timeout := c.timeout
	c.mu.RUnlock()

	status := HealthStatus{
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    c.Uptime().Round(time.Second).String(),
		Timestamp: c.now(),
		Version:   c.version,
	}

	var mu sync.Mutex
	var g errgroup.Group
	for name, nc := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := nc.fn(checkCtx)
			res := CheckResult{
				Healthy:  err == nil,
				Critical: nc.critical,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				res.Message = err.Error()
			}

			mu.Lock()
			status.Checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for name, res := range status.Checks {
		if res.Healthy {
			continue
		}
		failed = append(failed, name)
		if res.Critical {
			status.Ready = false
		} else {
			status.Degraded = true
		}
	}
	sort.Strings(failed)

	switch {
	case len(checks) == 0:
		status.Message = "no checks registered"
	case len(failed) == 0:
		status.Message = "all checks passed"
	default:
		status.Message = "failing: " + strings.Join(failed, ", ")
	}
	return status
}
