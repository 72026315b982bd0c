package ledger

import (
	"context"
	"time"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// Contents is the persisted form of a ledger.
type Contents struct {
	Entries      map[shared.SkillID]shared.XP
	LastModified time.Time
}

// Store defines the persistence collaborator for ledgers.
// Implementations live in the infrastructure layer.
type Store interface {
	// Load returns the persisted contents for an actor.
	// found is false when the actor has never been saved; that is not an error.
	Load(ctx context.Context, actor shared.ActorID) (contents Contents, found bool, err error)

	// Save durably replaces the actor's persisted contents.
	Save(ctx context.Context, actor shared.ActorID, contents Contents) error

	// Delete removes all persisted data of an actor. Deleting an unknown actor is not an error.
	Delete(ctx context.Context, actor shared.ActorID) error
}
