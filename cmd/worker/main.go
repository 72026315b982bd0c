// Package main is the skill progression worker.
//
// The worker owns the in-memory ledgers of active actors and runs:
//   - the operator HTTP API (queries, grants, admin)
//   - the periodic analysis sweep that refreshes projections
//   - the periodic ledger flush to the configured store
//   - taxonomy reloads, on file change and on a timer
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alem-hub/skill-progression/config"
	"github.com/alem-hub/skill-progression/internal/application/command"
	"github.com/alem-hub/skill-progression/internal/application/query"
	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
	"github.com/alem-hub/skill-progression/internal/infrastructure/messaging"
	"github.com/alem-hub/skill-progression/internal/infrastructure/observability"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/projections"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/resilient"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/skill-progression/internal/infrastructure/scheduler"
	"github.com/alem-hub/skill-progression/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/skill-progression/internal/infrastructure/taxonomy"
	httpapi "github.com/alem-hub/skill-progression/internal/interface/http"
	"github.com/alem-hub/skill-progression/internal/interface/http/handlers"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
	"github.com/alem-hub/skill-progression/pkg/logger"
	"github.com/alem-hub/skill-progression/pkg/ratelimit"
	"github.com/alem-hub/skill-progression/pkg/retry"
	"github.com/alem-hub/skill-progression/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := logger.ParseLevel(cfg.Observability.LogLevel)
	format := logger.Format(cfg.Observability.LogFormat)
	log := logger.NewSlog(os.Stdout, level, format)
	slog.SetDefault(log)
	apiLog := logger.New(logger.Options{Output: os.Stdout, Level: level, Format: format}).
		With(logger.Component("http"))

	log.Info("starting skill progression worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"storage", cfg.Storage.Driver,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. METRICS AND EVENTS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		registerer prometheus.Registerer = prometheus.NewRegistry()
		gatherer   prometheus.Gatherer
	)
	if cfg.Observability.MetricsEnabled {
		registerer = prometheus.DefaultRegisterer
		gatherer = prometheus.DefaultGatherer
	}
	collector := observability.NewCollector(registerer)

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	if err := collector.Attach(bus); err != nil {
		return fmt.Errorf("failed to attach metrics collector: %w", err)
	}

	clock := timeutil.UTC
	health := handlers.NewHealthChecker(cfg.App.Version, clock)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. LEDGER STORE
	// ─────────────────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, collector, log)
	if err != nil {
		return err
	}
	defer closeStore()
	health.AddCheck("ledger_store", store.Ping)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. PROJECTION (Redis or in-process view)
	// ─────────────────────────────────────────────────────────────────────────
	view := projections.NewProgressionView()
	var (
		projection  progression.Projection    = view
		specialists httpapi.SpecialistRanking = view
	)

	if cfg.ProjectionEnabled() || cfg.Redis.RelayChannel != "" {
		cache, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, using in-process projection", "error", err)
		} else {
			defer func() { _ = cache.Close() }()
			health.AddOptionalCheck("redis", cache.Ping)

			if cfg.ProjectionEnabled() {
				projection = redis.NewProgressionCache(cache, redis.ProgressionCacheConfig{
					TTL:     cfg.Redis.ProjectionTTL,
					Breaker: circuitbreaker.RedisBreaker(collector.BreakerStateChanged),
					Logger:  log,
				})
				specialists = nil
				log.Info("projecting progression to redis", "ttl", cfg.Redis.ProjectionTTL.String())
			}
			if cfg.Redis.RelayChannel != "" {
				relay := messaging.NewRedisRelay(cache.Client(), messaging.RedisRelayConfig{
					Channel: cfg.Redis.RelayChannel,
					Breaker: circuitbreaker.New("redis-relay",
						circuitbreaker.WithFailureThreshold(3),
						circuitbreaker.WithCooldown(15*time.Second),
						circuitbreaker.WithOnStateChange(collector.BreakerStateChanged),
					),
					Logger: log,
				})
				if err := relay.Attach(bus); err != nil {
					return fmt.Errorf("failed to attach event relay: %w", err)
				}
				log.Info("relaying events", "channel", cfg.Redis.RelayChannel)
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	registry := skilltree.NewRegistry(
		skilltree.WithDynamicCapacity(shared.XP(cfg.Engine.DynamicCapacity)),
		skilltree.WithDynamicIDs(cfg.Engine.DynamicIDs),
	)
	tuning := progression.Tuning{
		DominantPathThreshold:    shared.XP(cfg.Engine.DominantPathThreshold),
		HyperBonusEventThreshold: cfg.Engine.HyperBonusEventThreshold,
		DynamicClustering:        cfg.Features.IsEnabled(config.FeatureDynamicClustering),
		HyperBonus:               cfg.Features.IsEnabled(config.FeatureHyperBonus),
		SpecialistPenalty:        cfg.Features.IsEnabled(config.FeatureSpecialistPenalty),
	}
	if err := tuning.Validate(); err != nil {
		return fmt.Errorf("invalid engine tuning: %w", err)
	}

	book := ledger.NewBook(store)
	analyzer := progression.NewAnalyzer(registry, tuning, bus)
	aggregator := progression.NewAggregator(registry, bus)

	source := taxonomy.NewFileSource(taxonomy.FileSourceConfig{Patterns: cfg.Taxonomy.Patterns, Logger: log})
	reload := command.NewReloadTaxonomyHandler(source, registry, bus, log)
	if _, err := reload.Handle(ctx, command.ReloadTaxonomyCommand{CorrelationID: "boot"}); err != nil {
		return fmt.Errorf("failed to load taxonomy: %w", err)
	}
	health.AddCheck("taxonomy", func(context.Context) error {
		if registry.Len() == 0 {
			return errors.New("no skill trees loaded")
		}
		return nil
	})

	refresh := command.NewRefreshProgressionHandler(book, analyzer, aggregator, projection)
	flush := command.NewFlushLedgerHandler(book, store, bus, log, command.FlushLedgerHandlerConfig{})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. TAXONOMY WATCHER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Taxonomy.Watch {
		watcher, err := taxonomy.NewWatcher(taxonomy.WatcherConfig{
			Patterns: cfg.Taxonomy.Patterns,
			Debounce: cfg.Taxonomy.WatchDebounce,
			Logger:   log,
		}, func(ctx context.Context, paths []string) {
			res, err := reload.Handle(ctx, command.ReloadTaxonomyCommand{CorrelationID: uuid.NewString()})
			if err != nil {
				log.Error("taxonomy reload failed, keeping previous catalog", "paths", paths, "error", err)
				return
			}
			log.Info("taxonomy reloaded from disk", "paths", paths, "digest", res.Digest, "skipped", res.Skipped)
		})
		if err != nil {
			log.Warn("taxonomy watcher disabled", "error", err)
		} else {
			watcher.Start(ctx)
			defer func() { _ = watcher.Stop() }()
			log.Info("watching taxonomy", "dirs", watcher.Dirs())
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:       log,
		TickInterval: cfg.Scheduler.TickInterval,
		Observer:     collector,
	})
	analyzeJob := jobs.NewAnalyzeActorsJob(book, refresh, log, jobs.AnalyzeActorsConfig{
		MaxConcurrency: cfg.Scheduler.MaxConcurrency,
		Timeout:        cfg.Scheduler.AnalysisTimeout,
	})
	if err := sched.Register(analyzeJob, scheduler.NewIntervalSchedule(cfg.Scheduler.AnalysisInterval).WithJitter(cfg.Scheduler.Jitter)); err != nil {
		return err
	}
	if err := sched.Register(jobs.NewFlushLedgersJob(flush, log), scheduler.NewIntervalSchedule(cfg.Scheduler.FlushInterval).WithJitter(cfg.Scheduler.Jitter)); err != nil {
		return err
	}
	if cfg.Taxonomy.ReloadInterval > 0 {
		if err := sched.Register(jobs.NewReloadTaxonomyJob(reload, log), scheduler.NewIntervalSchedule(cfg.Taxonomy.ReloadInterval)); err != nil {
			return err
		}
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		AdminToken:   cfg.HTTP.AdminToken,
		WriteRate: ratelimit.Config{
			Rate:  cfg.HTTP.WriteRate,
			Burst: cfg.HTTP.WriteBurst,
		},
		Version: cfg.App.Version,
	}, httpapi.Dependencies{
		AnalyzeActor:   query.NewAnalyzeActorHandler(book, analyzer),
		GetMultipliers: query.NewGetMultipliersHandler(book, registry, analyzer),
		GetWeights:     query.NewGetWeightsHandler(aggregator),
		AggregateXP:    query.NewAggregateXPHandler(book, registry, analyzer, aggregator),
		Projection:     projection,
		Specialists:    specialists,
		GrantXP: command.NewGrantXPHandler(book, registry, bus, command.GrantXPHandlerConfig{
			RejectUnknownSkills: cfg.Engine.RejectUnknownSkills,
		}),
		SetXP:          command.NewSetXPHandler(book, registry, bus),
		ResetActor:     command.NewResetActorHandler(book, store, aggregator, projection, bus),
		ReloadTaxonomy: reload,
		Jobs:           sched,
		Health:         health,
		Metrics:        gatherer,
		Logger:         apiLog,
		Clock:          clock,
	})
	serverErr := server.StartAsync()

	log.Info("worker is running",
		"http", cfg.HTTP.Addr,
		"trees", registry.TreeNames(),
		"scheduler", cfg.Scheduler.Enabled,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok && err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched.IsRunning() {
		_ = sched.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	// Last chance to persist: retry each save before giving up.
	final := command.NewFlushLedgerHandler(book, store, bus, log, command.DefaultFlushLedgerHandlerConfig())
	res, err := final.Handle(shutdownCtx, command.FlushLedgerCommand{CorrelationID: "shutdown"})
	switch {
	case err != nil:
		log.Error("final flush aborted", "error", err)
	case res.HasFailures():
		log.Error("final flush left unsaved ledgers", "flushed", len(res.Flushed), "failed", len(res.Failed))
	default:
		log.Info("final flush complete", "flushed", len(res.Flushed))
	}

	bus.Drain()
	_ = bus.Close()

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// guardedStore is the ledger store with the extras the worker needs.
type guardedStore interface {
	ledger.Store
	Ping(ctx context.Context) error
}

type memoryStore struct{ *memory.LedgerStore }

func (memoryStore) Ping(context.Context) error { return nil }

// openStore opens the configured ledger store. Durable stores are guarded
// by the database breaker.
func openStore(ctx context.Context, cfg *config.Config, collector *observability.Collector, log *slog.Logger) (guardedStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.Storage.DatabaseURL)
		pgCfg.MaxConns = int32(cfg.Storage.MaxConns)
		pgCfg.MinConns = int32(cfg.Storage.MinConns)
		pgCfg.MaxConnLifetime = cfg.Storage.ConnMaxLifetime
		pgCfg.Retrier = retry.New(
			retry.WithMaxAttempts(cfg.Storage.ConnectAttempts),
			retry.WithInitialDelay(500*time.Millisecond),
			retry.WithMaxDelay(10*time.Second),
			retry.WithRetryIf(retry.UnlessCanceled),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Warn("database not ready, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
			}),
		)
		pgCfg.Logger = log

		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")

		store := resilient.NewStore(postgres.NewLedgerRepository(conn), circuitbreaker.DatabaseBreaker(collector.BreakerStateChanged))
		return store, conn.Close, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info("sqlite store opened", "path", cfg.Storage.SQLitePath)

		store := resilient.NewStore(db, circuitbreaker.DatabaseBreaker(collector.BreakerStateChanged))
		return store, func() { _ = db.Close() }, nil

	default:
		log.Warn("using in-memory ledger store, nothing survives a restart")
		return memoryStore{memory.NewLedgerStore()}, func() {}, nil
	}
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}
