// Package ratelimit keeps one token bucket per caller, used to keep a
// misbehaving client from flooding the ledger with grants.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter.
type Config struct {
	// Rate is the sustained number of requests per second per key.
	Rate float64

	// Burst is the bucket size.
	Burst int

	// IdleTTL drops buckets unused for this long. Zero keeps them for 10 minutes.
	IdleTTL time.Duration

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig allows 10 requests per second with bursts of 20.
func DefaultConfig() Config {
	return Config{Rate: 10, Burst: 20, IdleTTL: 10 * time.Minute}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one rate.Limiter per key.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	entries   map[string]*entry
	lastSweep time.Time
}

// New creates a Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		limit:   rate.Limit(cfg.Rate),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		now:     cfg.Now,
		entries: make(map[string]*entry),
	}
}

// Allow takes a token from key's bucket. When the bucket is empty it
// returns false and how long until the next token; the token is not consumed.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	now := l.now()
	lim := l.get(key, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweep drops idle buckets at most once per idle period. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.entries, key)
		}
	}
}
