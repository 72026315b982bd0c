package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(rate float64, burst int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(Config{Rate: rate, Burst: burst, IdleTTL: time.Minute, Now: clock.now}), clock
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clock := newLimiter(2, 3)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("a")
		assert.True(t, ok, "request %d", i)
	}
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	clock.advance(500 * time.Millisecond)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(1, 1)

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok)
}

func TestLimiter_IdleBucketsAreDropped(t *testing.T) {
	l, clock := newLimiter(1, 1)
	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	clock.advance(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	l, _ := newLimiter(0, 1)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("a")
		assert.True(t, ok)
	}
}
