package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// LedgerRepository implements ledger.Store for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

var _ ledger.Store = (*LedgerRepository)(nil)

// Load returns the persisted ledger of an actor. An actor without a header row
// was never saved.
func (r *LedgerRepository) Load(ctx context.Context, actor shared.ActorID) (ledger.Contents, bool, error) {
	rows, err := r.conn.Query(ctx, `SELECT last_modified FROM ledgers WHERE actor_id = $1`, actor.String())
	if err != nil {
		return ledger.Contents{}, false, fmt.Errorf("failed to query ledger: %w", err)
	}
	lastModified, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[time.Time])
	if IsNoRows(err) {
		return ledger.Contents{}, false, nil
	}
	if err != nil {
		return ledger.Contents{}, false, fmt.Errorf("failed to scan ledger: %w", err)
	}

	rows, err = r.conn.Query(ctx, `SELECT skill_id, xp FROM ledger_entries WHERE actor_id = $1`, actor.String())
	if err != nil {
		return ledger.Contents{}, false, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[shared.SkillID]shared.XP)
	for rows.Next() {
		var skill string
		var xp int64
		if err := rows.Scan(&skill, &xp); err != nil {
			return ledger.Contents{}, false, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries[shared.SkillID(skill)] = shared.XP(xp)
	}
	if err := rows.Err(); err != nil {
		return ledger.Contents{}, false, fmt.Errorf("failed to read ledger entries: %w", err)
	}

	return ledger.Contents{Entries: entries, LastModified: lastModified}, true, nil
}

// Save replaces the actor's rows in one transaction.
func (r *LedgerRepository) Save(ctx context.Context, actor shared.ActorID, c ledger.Contents) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO ledgers (actor_id, last_modified, saved_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (actor_id) DO UPDATE
			SET last_modified = EXCLUDED.last_modified, saved_at = NOW()
		`, actor.String(), c.LastModified)
		if err != nil {
			return fmt.Errorf("failed to upsert ledger: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE actor_id = $1`, actor.String()); err != nil {
			return fmt.Errorf("failed to clear ledger entries: %w", err)
		}
		if len(c.Entries) == 0 {
			return nil
		}

		now := time.Now().UTC()
		rows := make([][]any, 0, len(c.Entries))
		for skill, xp := range c.Entries {
			rows = append(rows, []any{actor.String(), skill.String(), xp.Int64(), now})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"ledger_entries"},
			[]string{"actor_id", "skill_id", "xp", "updated_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			if IsCheckViolation(err) {
				return shared.WrapError("ledger", "Save", shared.ErrNegativeValue, "negative xp rejected by database", err)
			}
			return fmt.Errorf("failed to copy ledger entries: %w", err)
		}
		return nil
	})
}

// Delete removes every row of an actor.
func (r *LedgerRepository) Delete(ctx context.Context, actor shared.ActorID) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE actor_id = $1`, actor.String()); err != nil {
			return fmt.Errorf("failed to delete ledger entries: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ledgers WHERE actor_id = $1`, actor.String()); err != nil {
			return fmt.Errorf("failed to delete ledger: %w", err)
		}
		return nil
	})
}

// Actors returns the ids of every saved actor, sorted.
func (r *LedgerRepository) Actors(ctx context.Context) ([]shared.ActorID, error) {
	rows, err := r.conn.Query(ctx, `SELECT actor_id FROM ledgers ORDER BY actor_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query actors: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan actors: %w", err)
	}
	out := make([]shared.ActorID, len(ids))
	for i, id := range ids {
		out[i] = shared.ActorID(id)
	}
	return out, nil
}

// Ping checks the database behind the repository.
func (r *LedgerRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}
