// Package redis implements the optional redis projection of progression state.
// Downstream gameplay systems read metrics and tree weights from it without
// talking to the engine.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string

	// DB is the Redis database number (0-15).
	DB int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS AND KEYS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when the requested key is not found in cache.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when Redis connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned when serialization/deserialization fails.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
)

const (
	// PrefixProgression namespaces projected actor state.
	PrefixProgression = "progression:"

	// PrefixWeights namespaces the per-actor tree weight hashes.
	PrefixWeights = "weights:"
)

// DefaultProjectionTTL bounds how long a projection survives without a refresh.
const DefaultProjectionTTL = 30 * time.Minute

// ProgressionKey is the hash holding the projected state of an actor.
func ProgressionKey(actor string) string {
	return PrefixProgression + actor
}

// WeightsKey is the hash of tree name to weight for an actor.
func WeightsKey(actor string) string {
	return PrefixWeights + actor
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps a go-redis client with JSON helpers.
type Cache struct {
	client *redis.Client
	config Config
}

// NewCache connects to Redis and verifies the connection with a ping.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return NewCacheFromClient(client, cfg), nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client *redis.Client, cfg Config) *Cache {
	return &Cache{client: client, config: cfg}
}

// Client returns the underlying Redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// HGetJSON decodes one hash field into dest.
func (c *Cache) HGetJSON(ctx context.Context, key, field string, dest any) error {
	if key == "" || field == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.HGet(ctx, key, field).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// HGetAll returns every field of a hash. A missing key yields an empty map.
func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}
	return c.client.HGetAll(ctx, key).Result()
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
