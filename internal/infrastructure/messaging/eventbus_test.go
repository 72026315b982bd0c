package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

func grant() shared.Event {
	return shared.NewXPGrantedEvent("alice", "farming.crops.wheat", 10, 40)
}

func TestInMemoryEventBus_SyncOrder(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	var order []string

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		order = append(order, "all")
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventXPGranted, func(shared.Event) error {
		order = append(order, "typed")
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventXPSet, func(shared.Event) error {
		order = append(order, "other")
		return nil
	}))

	require.NoError(t, bus.Publish(grant()))
	assert.Equal(t, []string{"typed", "all"}, order)
	assert.Equal(t, int64(1), bus.Stats().Snapshot().PublishedByType[shared.EventXPGranted])
}

func TestInMemoryEventBus_HandlerErrorsAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	reached := false

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("nope") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		reached = true
		return nil
	}))

	assert.NoError(t, bus.Publish(grant()))
	assert.True(t, reached)

	snap := bus.Stats().Snapshot()
	assert.Equal(t, int64(3), snap.Executions)
	assert.Equal(t, int64(2), snap.Failures)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})
	var count atomic.Int64

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(grant())
		}()
	}
	wg.Wait()
	bus.Drain()

	assert.Equal(t, int64(20), count.Load())
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(grant()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_NilArguments(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	assert.ErrorIs(t, bus.Subscribe(shared.EventXPSet, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

// ─────────────────────────────────────────────────────────────────────────────
// Relay
// ─────────────────────────────────────────────────────────────────────────────

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	channels []string
	messages [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func TestRedisRelay_PublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewRedisRelay(pub, RedisRelayConfig{})
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	require.NoError(t, relay.Attach(bus))

	event := shared.NewXPGrantedEvent("alice", "mining.ore", 5, 5)
	event.BaseEvent = event.BaseEvent.WithCorrelationID("req-1")
	require.NoError(t, bus.Publish(event))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, DefaultRelayChannel, pub.channels[0])

	var env shared.EventEnvelope
	require.NoError(t, json.Unmarshal(pub.messages[0], &env))
	assert.Equal(t, shared.EventXPGranted, env.Type)
	assert.Equal(t, "alice", env.AggregateID)
	assert.Equal(t, "req-1", env.CorrelationID)
}

func TestRedisRelay_FiltersTypes(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewRedisRelay(pub, RedisRelayConfig{Types: []shared.EventType{shared.EventClusterFormed}})

	require.NoError(t, relay.Handle(grant()))
	assert.Empty(t, pub.messages)
}

func TestRedisRelay_BreakerSwallowsRejections(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	breaker := circuitbreaker.New("relay", circuitbreaker.WithFailureThreshold(1))
	relay := NewRedisRelay(pub, RedisRelayConfig{Breaker: breaker})

	assert.Error(t, relay.Handle(grant()))
	assert.True(t, breaker.IsOpen())
	assert.NoError(t, relay.Handle(grant()))
}
