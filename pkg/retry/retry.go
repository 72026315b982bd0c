// Package retry runs operations against flaky collaborators (ledger stores,
// database connects) with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

// PermanentError stops the retry loop immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so it is never retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries the permanent marker.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// UnlessCanceled retries every error except context cancellation and deadlines.
// Stores rarely classify their own errors, so this is the usual storage policy.
func UnlessCanceled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds retry configuration.
type Config struct {
	// MaxAttempts counts the first attempt too. Default: 3
	MaxAttempts int

	// InitialDelay is the wait before the first retry. Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Default: 30s
	MaxDelay time.Duration

	// Multiplier grows the delay after each attempt. Default: 2.0
	Multiplier float64

	// JitterFactor randomizes delays by +/- the given share. Default: 0.1
	JitterFactor float64

	// RetryIf decides whether an error is retried.
	// If nil, UnlessCanceled is used.
	RetryIf func(error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Option is a functional option for configuring retries.
type Option func(*Config)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay sets the maximum delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1.0 {
			c.Multiplier = m
		}
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1.0 {
			c.JitterFactor = j
		}
	}
}

// WithRetryIf sets the retry policy.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		c.RetryIf = fn
	}
}

// WithOnRetry sets a callback run before each retry.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier manages retry operations.
type Retrier struct {
	config Config
}

// New creates a new Retrier with the given options.
func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Config returns the effective configuration.
func (r *Retrier) Config() Config { return r.config }

// Do executes the operation until it succeeds, the policy refuses a retry,
// attempts run out or ctx is done. The last error is returned unwrapped from
// the retry markers.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return unmark(lastErr)
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) || !r.shouldRetry(err) || attempt == r.config.MaxAttempts {
			return unmark(err)
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmark(lastErr)
		case <-timer.C:
		}
	}

	return unmark(lastErr)
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	return UnlessCanceled(err)
}

// delay computes initialDelay * multiplier^(attempt-1), capped and jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.JitterFactor > 0 {
		d += d * r.config.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func unmark(err error) error {
	var p *PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// StorageRetrier returns a Retrier for ledger store writes.
func StorageRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(1*time.Second),
		WithMultiplier(2.0),
		WithJitter(0.05),
		WithRetryIf(UnlessCanceled),
	)
}
