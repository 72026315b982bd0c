package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/infrastructure/messaging"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(prometheus.NewRegistry())
}

func TestCollector_CountsEventsFromBus(t *testing.T) {
	c := newTestCollector(t)
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	require.NoError(t, c.Attach(bus))

	require.NoError(t, bus.Publish(shared.NewXPGrantedEvent("alice", "farming.crops.wheat", 30, 30)))
	require.NoError(t, bus.Publish(shared.NewXPGrantedEvent("alice", "farming.orchard", 12, 12)))
	require.NoError(t, bus.Publish(shared.NewXPGrantedEvent("bob", "mining", 5, 5)))
	require.NoError(t, bus.Publish(shared.NewClusterFormedEvent("alice", "cluster:farming.crops", []shared.SkillID{"farming.crops.wheat", "farming.crops.corn"}, 0.8)))
	require.NoError(t, bus.Publish(shared.NewTaxonomyReloadedEvent("abc", []string{"main", "seasonal"}, 14)))
	require.NoError(t, bus.Publish(shared.NewLedgerFlushedEvent("alice", 3, 2)))
	require.NoError(t, bus.Publish(shared.NewLedgerFlushFailedEvent("bob", errors.New("down"))))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.XPGranted.WithLabelValues("farming")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.XPGrantedAmount.WithLabelValues("farming")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.XPGranted.WithLabelValues("mining")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ClustersFormed))
	assert.Equal(t, 14.0, testutil.ToFloat64(c.TaxonomyNodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.TaxonomyTrees))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LedgerFlushes.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LedgerFlushes.WithLabelValues(ResultFailed)))
}

func TestCollector_ObserveJob(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveJob("flush_ledgers", 20*time.Millisecond, nil)
	c.ObserveJob("flush_ledgers", 5*time.Millisecond, errors.New("partial"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobRuns.WithLabelValues("flush_ledgers", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobRuns.WithLabelValues("flush_ledgers", ResultFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.JobDuration))
}

func TestCollector_BreakerState(t *testing.T) {
	c := newTestCollector(t)
	cb := circuitbreaker.New("redis", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithOnStateChange(c.BreakerStateChanged))

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	assert.Equal(t, float64(circuitbreaker.StateOpen), testutil.ToFloat64(c.BreakerState.WithLabelValues("redis")))
}

func TestCollector_ActorReset(t *testing.T) {
	c := newTestCollector(t)
	assert.NoError(t, c.Handle(shared.NewActorResetEvent("alice", 3)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActorResets))
}
