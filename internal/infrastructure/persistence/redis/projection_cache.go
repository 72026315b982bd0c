package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

const (
	fieldState    = "state"
	fieldVersion  = "version"
	fieldComputed = "computed_at"
)

// ProgressionCacheConfig configures a ProgressionCache.
type ProgressionCacheConfig struct {
	// TTL of both keys of an actor. Zero means DefaultProjectionTTL.
	TTL time.Duration

	// Breaker guards every call. Nil means circuitbreaker.RedisBreaker.
	Breaker *circuitbreaker.CircuitBreaker

	Logger *slog.Logger
}

// ProgressionCache implements progression.Projection. Each actor owns two
// hashes: progression:<actor> with the JSON state plus its version, and
// weights:<actor> mapping tree names to weights for cheap single-field reads.
type ProgressionCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ progression.Projection = (*ProgressionCache)(nil)

// NewProgressionCache creates a ProgressionCache on top of cache.
func NewProgressionCache(cache *Cache, cfg ProgressionCacheConfig) *ProgressionCache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultProjectionTTL
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.RedisBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		})
	}
	return &ProgressionCache{cache: cache, ttl: ttl, breaker: breaker, logger: logger}
}

// Breaker exposes the guarding breaker for health reporting.
func (p *ProgressionCache) Breaker() *circuitbreaker.CircuitBreaker {
	return p.breaker
}

// Save replaces both hashes of an actor in one MULTI/EXEC.
func (p *ProgressionCache) Save(ctx context.Context, state progression.ProjectedState) error {
	if state.Actor.IsEmpty() {
		return ErrCacheKeyEmpty
	}
	fields, err := encodeState(state)
	if err != nil {
		return err
	}
	weights := encodeWeights(state.Weights)

	stateKey := ProgressionKey(state.Actor.String())
	weightsKey := WeightsKey(state.Actor.String())

	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := p.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, stateKey, weightsKey)
			pipe.HSet(ctx, stateKey, fields)
			pipe.Expire(ctx, stateKey, p.ttl)
			if len(weights) > 0 {
				pipe.HSet(ctx, weightsKey, weights)
				pipe.Expire(ctx, weightsKey, p.ttl)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis: save projection: %w", err)
		}
		return nil
	})
}

// Get returns the projected state of an actor.
func (p *ProgressionCache) Get(ctx context.Context, actor shared.ActorID) (progression.ProjectedState, bool, error) {
	var state progression.ProjectedState
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.HGetJSON(ctx, ProgressionKey(actor.String()), fieldState, &state)
	})
	if errors.Is(err, ErrCacheMiss) {
		return progression.ProjectedState{}, false, nil
	}
	if err != nil {
		return progression.ProjectedState{}, false, err
	}
	return state, true, nil
}

// Weights reads only the weight hash of an actor.
func (p *ProgressionCache) Weights(ctx context.Context, actor shared.ActorID) (progression.Weights, error) {
	var raw map[string]string
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		raw, err = p.cache.HGetAll(ctx, WeightsKey(actor.String()))
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeWeights(raw)
}

// Delete drops both hashes of an actor.
func (p *ProgressionCache) Delete(ctx context.Context, actor shared.ActorID) error {
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.Delete(ctx, ProgressionKey(actor.String()), WeightsKey(actor.String()))
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENCODING
// ══════════════════════════════════════════════════════════════════════════════

func encodeState(state progression.ProjectedState) (map[string]any, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return map[string]any{
		fieldState:    data,
		fieldVersion:  strconv.FormatUint(state.Version, 10),
		fieldComputed: state.ComputedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func encodeWeights(w progression.Weights) map[string]any {
	out := make(map[string]any, len(w))
	for tree, weight := range w {
		out[tree] = strconv.FormatFloat(weight, 'f', -1, 64)
	}
	return out
}

func decodeWeights(raw map[string]string) (progression.Weights, error) {
	w := make(progression.Weights, len(raw))
	for tree, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: weight of %s: %v", ErrCacheSerialization, tree, err)
		}
		w[tree] = v
	}
	return w, nil
}
