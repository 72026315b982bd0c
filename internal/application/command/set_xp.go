package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET XP COMMAND
// Administrative overwrite of one ledger entry. Unlike a grant it may lower
// experience, but negative values are still rejected.
// ══════════════════════════════════════════════════════════════════════════════

// SetXPCommand contains the data to overwrite experience.
type SetXPCommand struct {
	ActorID string
	SkillID string

	// Amount is the new experience value. Must be >= 0.
	Amount int64

	// Reason is recorded in the event correlation for audits.
	Reason string

	CorrelationID string
}

// Validate validates the command.
func (c SetXPCommand) Validate() error {
	if c.ActorID == "" {
		return errors.New("actor_id is required")
	}
	if c.SkillID == "" {
		return errors.New("skill_id is required")
	}
	if c.Amount < 0 {
		return shared.Detail(shared.ErrNegativeXP, "amount %d", c.Amount)
	}
	return nil
}

// SetXPResult contains the result of an overwrite.
type SetXPResult struct {
	ActorID  shared.ActorID
	SkillID  shared.SkillID
	Previous shared.XP
	Current  shared.XP
	Known    bool
	Events   []shared.Event
}

// SetXPHandler handles the SetXPCommand.
type SetXPHandler struct {
	book           *ledger.Book
	registry       *skilltree.Registry
	eventPublisher shared.EventPublisher
}

// NewSetXPHandler creates a new SetXPHandler.
func NewSetXPHandler(book *ledger.Book, registry *skilltree.Registry, eventPublisher shared.EventPublisher) *SetXPHandler {
	return &SetXPHandler{
		book:           book,
		registry:       registry,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the set command.
func (h *SetXPHandler) Handle(ctx context.Context, cmd SetXPCommand) (*SetXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("set_xp: %w: %w", shared.ErrValidation, err)
	}

	target, err := resolveTarget(cmd.ActorID, cmd.SkillID, h.registry)
	if err != nil {
		return nil, fmt.Errorf("set_xp: %w", err)
	}

	l, err := h.book.GetOrLoad(ctx, target.actor)
	if err != nil {
		return nil, fmt.Errorf("set_xp: failed to get ledger: %w", err)
	}

	amount := shared.XP(cmd.Amount)
	prev, err := l.Set(target.skill, amount)
	if err != nil {
		return nil, fmt.Errorf("set_xp: %w", err)
	}

	event := shared.NewXPSetEvent(target.actor, target.skill, prev, amount)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	shared.PublishSafe(h.eventPublisher, event)

	return &SetXPResult{
		ActorID:  target.actor,
		SkillID:  target.skill,
		Previous: prev,
		Current:  amount,
		Known:    target.known,
		Events:   []shared.Event{event},
	}, nil
}
