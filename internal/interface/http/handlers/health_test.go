package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/skill-progression/pkg/timeutil"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthChecker_AllPass(t *testing.T) {
	c := NewHealthChecker("1.2.3", timeutil.Fixed(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	c.AddCheck("store", PingCheck(pinger{}))

	status := c.Check(context.Background())
	assert.True(t, status.Ready)
	assert.False(t, status.Degraded)
	assert.Equal(t, "all checks passed", status.Message)
	assert.Equal(t, "1.2.3", status.Version)
	assert.True(t, status.Checks["store"].Critical)
}

func TestHealthChecker_OptionalFailureDegrades(t *testing.T) {
	c := NewHealthChecker("", nil)
	c.AddCheck("store", PingCheck(pinger{}))
	c.AddOptionalCheck("redis", PingCheck(pinger{err: errors.New("connection refused")}))

	status := c.Check(context.Background())
	assert.True(t, status.Ready)
	assert.True(t, status.Degraded)
	assert.Equal(t, "failing: redis", status.Message)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestHealthChecker_CriticalFailureNotReady(t *testing.T) {
	c := NewHealthChecker("", nil)
	c.AddCheck("taxonomy", func(context.Context) error { return errors.New("no trees loaded") })
	c.AddCheck("store", PingCheck(pinger{err: errors.New("down")}))

	status := c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "failing: store, taxonomy", status.Message)

	c.RemoveCheck("store")
	c.RemoveCheck("taxonomy")
	assert.Equal(t, "no checks registered", c.Check(context.Background()).Message)
}

func TestHealthChecker_Timeout(t *testing.T) {
	c := NewHealthChecker("", nil)
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Contains(t, status.Checks["slow"].Message, "deadline exceeded")
}
