package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET ACTOR COMMAND
// Forgets everything the engine knows about an actor: the in-memory ledger,
// the persisted ledger, cached weights and the published projection.
// ══════════════════════════════════════════════════════════════════════════════

// ResetActorCommand contains the data to reset an actor.
type ResetActorCommand struct {
	ActorID       string
	CorrelationID string
}

// Validate validates the command.
func (c ResetActorCommand) Validate() error {
	if c.ActorID == "" {
		return errors.New("actor_id is required")
	}
	return nil
}

// ResetActorResult contains the result of a reset.
type ResetActorResult struct {
	ActorID shared.ActorID

	// SkillsDropped is the number of ledger entries held in memory at reset time.
	SkillsDropped int

	Events []shared.Event
}

// ResetActorHandler handles the ResetActorCommand.
type ResetActorHandler struct {
	book           *ledger.Book
	store          ledger.Store
	aggregator     *progression.Aggregator
	projection     progression.Projection
	eventPublisher shared.EventPublisher
}

// NewResetActorHandler creates a new ResetActorHandler. store and projection may be nil.
func NewResetActorHandler(
	book *ledger.Book,
	store ledger.Store,
	aggregator *progression.Aggregator,
	projection progression.Projection,
	eventPublisher shared.EventPublisher,
) *ResetActorHandler {
	return &ResetActorHandler{
		book:           book,
		store:          store,
		aggregator:     aggregator,
		projection:     projection,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the reset command.
func (h *ResetActorHandler) Handle(ctx context.Context, cmd ResetActorCommand) (*ResetActorResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reset_actor: %w: %w", shared.ErrValidation, err)
	}
	actor, err := shared.NewActorID(cmd.ActorID)
	if err != nil {
		return nil, fmt.Errorf("reset_actor: %w", err)
	}

	// Persistent state goes first so a failed delete leaves memory intact
	// and the reset can be retried.
	if h.store != nil {
		if err := h.store.Delete(ctx, actor); err != nil {
			return nil, fmt.Errorf("reset_actor: failed to delete ledger: %w", err)
		}
	}
	if h.projection != nil {
		if err := h.projection.Delete(ctx, actor); err != nil {
			return nil, fmt.Errorf("reset_actor: failed to delete projection: %w", err)
		}
	}

	var dropped int
	if l, ok := h.book.Get(actor); ok {
		dropped = l.Len()
	}
	h.book.Remove(actor)
	if h.aggregator != nil {
		h.aggregator.Clear(actor)
	}

	event := shared.NewActorResetEvent(actor, dropped)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	shared.PublishSafe(h.eventPublisher, event)

	return &ResetActorResult{
		ActorID:       actor,
		SkillsDropped: dropped,
		Events:        []shared.Event{event},
	}, nil
}
