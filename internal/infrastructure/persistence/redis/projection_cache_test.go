package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "progression:alice", ProgressionKey("alice"))
	assert.Equal(t, "weights:alice", WeightsKey("alice"))
}

func TestEncodeState(t *testing.T) {
	state := progression.ProjectedState{
		Actor:   "alice",
		Version: 7,
		Groups: map[string]progression.SpecializationMetrics{
			"farming": {GroupKey: "farming", MaxDepth: 3, Breadth: 1, Score: 0.3},
		},
		Weights:    progression.Weights{"main": 1.0},
		ComputedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	fields, err := encodeState(state)
	require.NoError(t, err)
	assert.Equal(t, "7", fields[fieldVersion])
	assert.Equal(t, "2026-01-02T03:04:05Z", fields[fieldComputed])

	var decoded progression.ProjectedState
	require.NoError(t, json.Unmarshal(fields[fieldState].([]byte), &decoded))
	assert.Equal(t, state.Groups["farming"], decoded.Groups["farming"])
}

func TestDecodeWeights(t *testing.T) {
	w, err := decodeWeights(map[string]string{"main": "1", "seasonal": "0.5"})
	require.NoError(t, err)
	assert.Equal(t, progression.Weights{"main": 1, "seasonal": 0.5}, w)

	_, err = decodeWeights(map[string]string{"main": "heavy"})
	assert.ErrorIs(t, err, ErrCacheSerialization)

	assert.Equal(t, "0.25", encodeWeights(progression.Weights{"a": 0.25})["a"])
}

func TestProgressionCache_BreakerOpensWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithCooldown(time.Hour))
	pc := NewProgressionCache(NewCacheFromClient(client, DefaultConfig()), ProgressionCacheConfig{Breaker: breaker})

	state := progression.ProjectedState{Actor: "alice", Weights: progression.Weights{"main": 1}}
	for i := 0; i < 2; i++ {
		err := pc.Save(context.Background(), state)
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsRejected(err))
	}

	err := pc.Save(context.Background(), state)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.True(t, pc.Breaker().IsOpen())
}

func TestProgressionCache_RejectsEmptyActor(t *testing.T) {
	pc := NewProgressionCache(NewCacheFromClient(redis.NewClient(&redis.Options{}), DefaultConfig()), ProgressionCacheConfig{})
	assert.ErrorIs(t, pc.Save(context.Background(), progression.ProjectedState{}), ErrCacheKeyEmpty)
}
