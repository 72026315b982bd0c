// Package sqlite implements a single-file ledger store for local runs and the
// skillctl tool. It mirrors the PostgreSQL layout: a header row per actor plus
// one row per skill.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ErrEmptyPath is returned by Open when no database path was configured.
var ErrEmptyPath = errors.New("sqlite: empty db path")

// LedgerStore implements ledger.Store on top of modernc.org/sqlite.
type LedgerStore struct {
	db *sql.DB
}

var _ ledger.Store = (*LedgerStore)(nil)

// Open creates the parent directory, opens the database and applies the schema.
func Open(path string) (*LedgerStore, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Writes are serialized through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LedgerStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledgers (
			actor_id      TEXT PRIMARY KEY,
			last_modified INTEGER NOT NULL,
			saved_at      INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			actor_id TEXT NOT NULL REFERENCES ledgers(actor_id) ON DELETE CASCADE,
			skill_id TEXT NOT NULL,
			xp       INTEGER NOT NULL CHECK (xp >= 0),
			PRIMARY KEY (actor_id, skill_id)
		);`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_skill ON ledger_entries(skill_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

// Load returns the persisted contents of an actor.
func (s *LedgerStore) Load(ctx context.Context, actor shared.ActorID) (ledger.Contents, bool, error) {
	var lastModified int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_modified FROM ledgers WHERE actor_id = ?`, actor.String(),
	).Scan(&lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Contents{}, false, nil
	}
	if err != nil {
		return ledger.Contents{}, false, fmt.Errorf("sqlite: load ledger: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT skill_id, xp FROM ledger_entries WHERE actor_id = ?`, actor.String())
	if err != nil {
		return ledger.Contents{}, false, fmt.Errorf("sqlite: load entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[shared.SkillID]shared.XP)
	for rows.Next() {
		var skill string
		var xp int64
		if err := rows.Scan(&skill, &xp); err != nil {
			return ledger.Contents{}, false, fmt.Errorf("sqlite: scan entry: %w", err)
		}
		entries[shared.SkillID(skill)] = shared.XP(xp)
	}
	if err := rows.Err(); err != nil {
		return ledger.Contents{}, false, fmt.Errorf("sqlite: read entries: %w", err)
	}

	return ledger.Contents{
		Entries:      entries,
		LastModified: time.Unix(0, lastModified).UTC(),
	}, true, nil
}

// Save replaces the actor's rows in one transaction.
func (s *LedgerStore) Save(ctx context.Context, actor shared.ActorID, c ledger.Contents) error {
	for skill, xp := range c.Entries {
		if !xp.IsValid() {
			return shared.Detail(shared.ErrNegativeXP, "skill %s has %d xp", skill, xp.Int64())
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledgers (actor_id, last_modified, saved_at) VALUES (?, ?, ?)
			ON CONFLICT(actor_id) DO UPDATE SET
				last_modified = excluded.last_modified,
				saved_at = excluded.saved_at`,
			actor.String(), c.LastModified.UnixNano(), time.Now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: upsert ledger: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE actor_id = ?`, actor.String()); err != nil {
			return fmt.Errorf("sqlite: clear entries: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_entries (actor_id, skill_id, xp) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("sqlite: prepare insert: %w", err)
		}
		defer stmt.Close()
		for skill, xp := range c.Entries {
			if _, err := stmt.ExecContext(ctx, actor.String(), skill.String(), xp.Int64()); err != nil {
				return fmt.Errorf("sqlite: insert entry %s: %w", skill, err)
			}
		}
		return nil
	})
}

// Delete removes every row of an actor.
func (s *LedgerStore) Delete(ctx context.Context, actor shared.ActorID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE actor_id = ?`, actor.String()); err != nil {
			return fmt.Errorf("sqlite: delete entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledgers WHERE actor_id = ?`, actor.String()); err != nil {
			return fmt.Errorf("sqlite: delete ledger: %w", err)
		}
		return nil
	})
}

// Actors returns the ids of every saved actor, sorted.
func (s *LedgerStore) Actors(ctx context.Context) ([]shared.ActorID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT actor_id FROM ledgers ORDER BY actor_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list actors: %w", err)
	}
	defer rows.Close()

	var out []shared.ActorID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan actor: %w", err)
		}
		out = append(out, shared.ActorID(id))
	}
	return out, rows.Err()
}

// Ping checks that the database file is still usable.
func (s *LedgerStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *LedgerStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
