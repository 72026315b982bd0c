package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

// DefaultRelayChannel is the pub/sub channel the relay publishes to.
const DefaultRelayChannel = "progression:events"

// Publisher is the slice of the redis client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisRelayConfig configures a RedisRelay.
type RedisRelayConfig struct {
	Channel string

	// Timeout bounds one publish call.
	Timeout time.Duration

	// Types limits relayed events. Empty relays everything.
	Types []shared.EventType

	// Breaker guards redis. Nil means circuitbreaker.RedisBreaker.
	Breaker *circuitbreaker.CircuitBreaker

	Logger *slog.Logger
}

// RedisRelay forwards events as JSON envelopes to a redis channel so that
// gameplay services in other processes can react to grants and clusters.
// It is a subscriber, not a bus: it never delivers anything back in-process.
type RedisRelay struct {
	client  Publisher
	channel string
	timeout time.Duration
	types   map[shared.EventType]struct{}
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRedisRelay creates a relay.
func NewRedisRelay(client Publisher, cfg RedisRelayConfig) *RedisRelay {
	if cfg.Channel == "" {
		cfg.Channel = DefaultRelayChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.RedisBreaker(nil)
	}

	var types map[shared.EventType]struct{}
	if len(cfg.Types) > 0 {
		types = make(map[shared.EventType]struct{}, len(cfg.Types))
		for _, t := range cfg.Types {
			types[t] = struct{}{}
		}
	}

	return &RedisRelay{
		client:  client,
		channel: cfg.Channel,
		timeout: cfg.Timeout,
		types:   types,
		breaker: cfg.Breaker,
		logger:  cfg.Logger,
	}
}

// Attach subscribes the relay to every event of bus.
func (r *RedisRelay) Attach(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(r.Handle)
}

// Handle is a shared.EventHandler publishing one envelope.
func (r *RedisRelay) Handle(event shared.Event) error {
	if r.types != nil {
		if _, ok := r.types[event.EventType()]; !ok {
			return nil
		}
	}

	env, err := shared.NewEventEnvelope(event)
	if err != nil {
		return fmt.Errorf("relay: envelope: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err = r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.client.Publish(ctx, r.channel, data).Err()
	})
	if circuitbreaker.IsRejected(err) {
		r.logger.Debug("relay skipped, redis breaker open", "event_type", event.EventType())
		return nil
	}
	if err != nil {
		return fmt.Errorf("relay: publish %s: %w", event.EventType(), err)
	}
	return nil
}
