// Package config loads the worker configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Storage       StorageConfig
	Redis         RedisConfig
	Taxonomy      TaxonomyConfig
	Engine        EngineConfig
	Scheduler     SchedulerConfig
	HTTP          HTTPConfig
	Observability ObservabilityConfig

	Features *FeatureFlags
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Version     string

	// ShutdownTimeout bounds the final ledger flush and server shutdown.
	ShutdownTimeout time.Duration
}

// StorageConfig selects and configures the ledger store.
type StorageConfig struct {
	Driver string

	// Postgres
	DatabaseURL     string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnectAttempts int

	// SQLite
	SQLitePath string
}

// RedisConfig holds the projection cache connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	ProjectionTTL time.Duration

	// RelayChannel receives every engine event as JSON. Empty disables the relay.
	RelayChannel string
}

// TaxonomyConfig locates the skill tree files.
type TaxonomyConfig struct {
	// Patterns are file globs, comma separated in TAXONOMY_FILES.
	Patterns []string

	Watch          bool
	WatchDebounce  time.Duration
	ReloadInterval time.Duration
}

// EngineConfig holds the operator-adjustable knobs of the analyzer.
type EngineConfig struct {
	DominantPathThreshold    int64
	DynamicCapacity          int64
	DynamicIDs               bool
	HyperBonusEventThreshold float64

	// RejectUnknownSkills refuses grants to skills no tree resolves.
	RejectUnknownSkills bool
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled          bool
	TickInterval     time.Duration
	AnalysisInterval time.Duration
	FlushInterval    time.Duration
	Jitter           time.Duration
	MaxConcurrency   int
	AnalysisTimeout  time.Duration
}

// HTTPConfig configures the operator API server.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AdminToken guards the write and admin routes. Empty disables them.
	AdminToken string

	// WriteRate and WriteBurst bound guarded requests per client IP.
	// A zero rate disables the limit.
	WriteRate  float64
	WriteBurst int
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string // debug, info, warn, error
	LogFormat      string // json, text
	MetricsEnabled bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App:           loadAppConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Taxonomy:      loadTaxonomyConfig(),
		Engine:        loadEngineConfig(),
		Scheduler:     loadSchedulerConfig(),
		HTTP:          loadHTTPConfig(),
		Observability: loadObservabilityConfig(),
		Features:      LoadFeatureFlags(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:            getEnv("APP_NAME", "skill-progression"),
		Environment:     Environment(getEnv("APP_ENV", string(EnvDevelopment))),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:          strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 1),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnectAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		SQLitePath:      getEnv("SQLITE_PATH", "data/ledgers.db"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:          getEnv("REDIS_HOST", "localhost"),
		Port:          getEnvInt("REDIS_PORT", 6379),
		Password:      getEnv("REDIS_PASSWORD", ""),
		DB:            getEnvInt("REDIS_DB", 0),
		PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		ProjectionTTL: getEnvDuration("REDIS_PROJECTION_TTL", 30*time.Minute),
		RelayChannel:  getEnv("REDIS_RELAY_CHANNEL", ""),
	}
}

func loadTaxonomyConfig() TaxonomyConfig {
	return TaxonomyConfig{
		Patterns:       getEnvList("TAXONOMY_FILES", []string{"taxonomy/*.yaml"}),
		Watch:          getEnvBool("TAXONOMY_WATCH", true),
		WatchDebounce:  getEnvDuration("TAXONOMY_WATCH_DEBOUNCE", 250*time.Millisecond),
		ReloadInterval: getEnvDuration("TAXONOMY_RELOAD_INTERVAL", 5*time.Minute),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		DominantPathThreshold:    getEnvInt64("ENGINE_DOMINANT_PATH_THRESHOLD", 1000),
		DynamicCapacity:          getEnvInt64("ENGINE_DYNAMIC_CAPACITY", 1000),
		DynamicIDs:               getEnvBool("ENGINE_DYNAMIC_IDS", true),
		HyperBonusEventThreshold: getEnvFloat("ENGINE_HYPER_BONUS_EVENT_THRESHOLD", 0.5),
		RejectUnknownSkills:      getEnvBool("ENGINE_REJECT_UNKNOWN_SKILLS", false),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:          getEnvBool("SCHEDULER_ENABLED", true),
		TickInterval:     getEnvDuration("SCHEDULER_TICK", time.Second),
		AnalysisInterval: getEnvDuration("SCHEDULER_ANALYSIS_INTERVAL", time.Minute),
		FlushInterval:    getEnvDuration("SCHEDULER_FLUSH_INTERVAL", 10*time.Second),
		Jitter:           getEnvDuration("SCHEDULER_JITTER", 2*time.Second),
		MaxConcurrency:   getEnvInt("SCHEDULER_MAX_CONCURRENCY", 4),
		AnalysisTimeout:  getEnvDuration("SCHEDULER_ANALYSIS_TIMEOUT", 2*time.Minute),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:         getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),
		WriteRate:    getEnvFloat("HTTP_WRITE_RATE", 10),
		WriteBurst:   getEnvInt("HTTP_WRITE_BURST", 20),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Driver {
	case DriverMemory:
		if c.App.Environment == EnvProduction {
			errs = append(errs, "STORAGE_DRIVER=memory is not allowed in production")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be memory, sqlite or postgres, got %q", c.Storage.Driver))
	}

	if len(c.Taxonomy.Patterns) == 0 {
		errs = append(errs, "TAXONOMY_FILES must name at least one pattern")
	}
	if c.Engine.DominantPathThreshold < 0 {
		errs = append(errs, "ENGINE_DOMINANT_PATH_THRESHOLD cannot be negative")
	}
	if c.Engine.DynamicCapacity <= 0 {
		errs = append(errs, "ENGINE_DYNAMIC_CAPACITY must be positive")
	}
	if c.Engine.HyperBonusEventThreshold < 0 {
		errs = append(errs, "ENGINE_HYPER_BONUS_EVENT_THRESHOLD cannot be negative")
	}
	if c.Scheduler.AnalysisInterval <= 0 || c.Scheduler.FlushInterval <= 0 {
		errs = append(errs, "scheduler intervals must be positive")
	}
	if c.Scheduler.MaxConcurrency < 1 {
		errs = append(errs, "SCHEDULER_MAX_CONCURRENCY must be at least 1")
	}

	if c.HTTP.WriteRate < 0 || c.HTTP.WriteBurst < 1 {
		errs = append(errs, "HTTP_WRITE_RATE cannot be negative and HTTP_WRITE_BURST must be at least 1")
	}

	if c.IsProduction() && c.HTTP.AdminToken != "" && len(c.HTTP.AdminToken) < 16 {
		errs = append(errs, "ADMIN_TOKEN must be at least 16 characters in production")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// ProjectionEnabled reports whether metrics are projected to Redis.
func (c *Config) ProjectionEnabled() bool {
	return c.Features != nil && c.Features.IsEnabled(FeatureProjectionRedis)
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	i, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
