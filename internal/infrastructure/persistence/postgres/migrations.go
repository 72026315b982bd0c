package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per actor and skill. An actor without rows was never saved.
CREATE TABLE IF NOT EXISTS ledger_entries (
    actor_id   VARCHAR(128) NOT NULL,
    skill_id   VARCHAR(256) NOT NULL,
    xp         BIGINT       NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (actor_id, skill_id),
    CONSTRAINT valid_xp CHECK (xp >= 0)
);

-- Actor header: last modification time of the ledger as a whole.
CREATE TABLE IF NOT EXISTS ledgers (
    actor_id      VARCHAR(128) PRIMARY KEY,
    last_modified TIMESTAMP WITH TIME ZONE NOT NULL,
    saved_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration001Down = `
DROP TABLE IF EXISTS ledger_entries;
DROP TABLE IF EXISTS ledgers;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SKILL INDEX
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Operators look up who invested in a skill subtree: skill_id LIKE 'farming.%'.
CREATE INDEX IF NOT EXISTS idx_ledger_entries_skill ON ledger_entries(skill_id text_pattern_ops);
`

const migration002Down = `
DROP INDEX IF EXISTS idx_ledger_entries_skill;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_ledger", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "skill_index", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// applied returns the applied versions with their timestamps.
func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}
