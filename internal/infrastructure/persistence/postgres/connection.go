// Package postgres implements the PostgreSQL ledger store.
// One row per actor and skill; a save replaces an actor's rows in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alem-hub/skill-progression/pkg/retry"
)

var (
	// ErrConnectionClosed is returned by every call after Close.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrMigrationFailed wraps a failed schema migration.
	ErrMigrationFailed = errors.New("postgres: migration failed")

	// ErrTransactionFailed wraps a transaction that could not be started.
	ErrTransactionFailed = errors.New("postgres: transaction failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds PostgreSQL connection configuration.
type Config struct {
	// URL is a postgres:// connection string.
	URL string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// Retrier is used while establishing the pool. Nil connects once.
	Retrier *retry.Retrier

	Logger *slog.Logger
}

// DefaultConfig returns a configuration that retries the first connect for
// a few seconds, long enough for a database container to come up.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		Retrier: retry.New(
			retry.WithMaxAttempts(5),
			retry.WithInitialDelay(500*time.Millisecond),
			retry.WithMaxDelay(10*time.Second),
			retry.WithRetryIf(retry.UnlessCanceled),
		),
	}
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse database URL: %w", err)
	}
	setPositive(&pc.MaxConns, c.MaxConns)
	setPositive(&pc.MinConns, c.MinConns)
	setPositive(&pc.MaxConnLifetime, c.MaxConnLifetime)
	setPositive(&pc.MaxConnIdleTime, c.MaxConnIdleTime)
	setPositive(&pc.HealthCheckPeriod, c.HealthCheckPeriod)
	return pc, nil
}

func setPositive[T int32 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection wraps a pgx pool. After Close every call fails with
// ErrConnectionClosed instead of panicking inside pgx.
type Connection struct {
	mu     sync.RWMutex
	pool   *pgxpool.Pool
	closed bool
}

// NewConnection creates a pool and verifies it with a ping, retrying with
// backoff while the database is not reachable yet.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	var pool *pgxpool.Pool
	connect := func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return retry.Permanent(fmt.Errorf("postgres: failed to create connection pool: %w", err))
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			log.Warn("postgres not reachable", "error", err)
			return fmt.Errorf("postgres: failed to ping database: %w", err)
		}
		pool = p
		return nil
	}

	if cfg.Retrier != nil {
		err = cfg.Retrier.Do(ctx, connect)
	} else {
		err = connect(ctx)
	}
	if err != nil {
		return nil, err
	}

	stat := pool.Stat()
	log.Info("postgres connected", "max_conns", stat.MaxConns(), "total_conns", stat.TotalConns())
	return &Connection{pool: pool}, nil
}

// acquire runs fn with the pool under the read lock.
func (c *Connection) acquire(fn func(*pgxpool.Pool) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return fn(c.pool)
}

// Close closes the pool. It is safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.pool.Close()
	}
}

// Ping checks that the database answers.
func (c *Connection) Ping(ctx context.Context) error {
	return c.acquire(func(p *pgxpool.Pool) error { return p.Ping(ctx) })
}

// Exec executes a statement that returns no rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := c.acquire(func(p *pgxpool.Pool) error {
		var err error
		tag, err = p.Exec(ctx, sql, args...)
		return err
	})
	return tag, err
}

// Query executes a query. The caller closes the rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := c.acquire(func(p *pgxpool.Pool) error {
		var err error
		rows, err = p.Query(ctx, sql, args...)
		return err
	})
	return rows, err
}

// WithTx runs fn in a read-committed transaction, committing when fn
// returns nil and rolling back otherwise.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var tx pgx.Tx
	err := c.acquire(func(p *pgxpool.Pool) error {
		var err error
		tx, err = p.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		return err
	})
	if errors.Is(err, ErrConnectionClosed) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// IsNoRows reports pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsCheckViolation reports a violated CHECK constraint, e.g. negative xp.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
