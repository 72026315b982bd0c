// Package circuitbreaker stops calls to a failing dependency (the redis
// projection, the ledger database) for a cool-down period so that analysis
// and flushing keep running on the in-memory state.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down expires.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the circuit rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open trial slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// IsRejected reports whether err came from the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies the guarded dependency in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes that closes it.
	SuccessThreshold int

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	// MaxTrials limits concurrent calls in the half-open state.
	MaxTrials int

	// OnStateChange is called with the breaker lock held; keep it short.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxTrials:        1,
	}
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*Config)

// WithFailureThreshold sets the failure threshold.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the success threshold.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

// WithMaxTrials sets the number of concurrent half-open calls.
func WithMaxTrials(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxTrials = n
		}
	}
}

// WithOnStateChange sets the state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// isFailure counts every error except context cancellation against the
// dependency.
func isFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Counts are the totals since the breaker was created or reset.
type Counts struct {
	Requests             int
	Rejected             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker guards calls to one dependency.
type CircuitBreaker struct {
	config Config

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	trials   int
	// generation changes on every transition; results of calls started in an
	// older generation are ignored.
	generation uint64
}

// New creates a new CircuitBreaker with the given name and options.
func New(name string, opts ...Option) *CircuitBreaker {
	config := DefaultConfig(name)
	for _, opt := range opts {
		opt(&config)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.afterRequest(generation, err)
	return err
}

// ExecuteWithFallback runs fn and calls fallback when the breaker rejected the call.
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(error) error) error {
	err := cb.Execute(ctx, fn)
	if IsRejected(err) {
		return fallback(err)
	}
	return err
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++

	switch cb.state {
	case StateClosed:
		return cb.generation, nil

	case StateOpen:
		if cb.config.Now().Sub(cb.openedAt) < cb.config.Cooldown {
			cb.counts.Rejected++
			return 0, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.trials = 1
		return cb.generation, nil

	case StateHalfOpen:
		if cb.trials >= cb.config.MaxTrials {
			cb.counts.Rejected++
			return 0, ErrTooManyRequests
		}
		cb.trials++
		return cb.generation, nil
	}
	return 0, ErrCircuitOpen
}

func (cb *CircuitBreaker) afterRequest(generation uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if generation != cb.generation {
		return
	}
	if err != nil && isFailure(err) {
		cb.onFailure()
		return
	}
	cb.onSuccess()
}

func (cb *CircuitBreaker) onSuccess() {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if cb.state == StateHalfOpen {
		if cb.trials > 0 {
			cb.trials--
		}
		if cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.generation++
	cb.trials = 0
	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	if next == StateOpen {
		cb.openedAt = cb.config.Now()
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}

// State returns the current state. An open circuit whose cool-down has
// expired still reports open until the next call tries it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns the current counts.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the circuit and clears the counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.counts = Counts{}
	cb.trials = 0
	cb.generation++
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// IsOpen returns true if the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// RedisBreaker guards the progression projection. The projection is
// optional, so it opens quickly and tries again soon.
func RedisBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"redis-projection",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithCooldown(15*time.Second),
		WithMaxTrials(1),
		WithOnStateChange(onStateChange),
	)
}

// DatabaseBreaker guards the ledger store during flush sweeps.
func DatabaseBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"ledger-database",
		WithFailureThreshold(5),
		WithSuccessThreshold(2),
		WithCooldown(10*time.Second),
		WithMaxTrials(1),
		WithOnStateChange(onStateChange),
	)
}
