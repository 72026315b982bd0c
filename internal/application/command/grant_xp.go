// Package command contains write operations (CQRS - Commands).
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
// GRANT XP COMMAND
// Adds experience to one skill of an actor. The engine never decides when or
// how much to grant; callers hand it a validated amount.
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPCommand contains the data to grant experience.
type GrantXPCommand struct {
	// ActorID identifies the actor receiving experience.
	ActorID string

	// SkillID is the dot-delimited skill path.
	SkillID string

	// Amount is the experience to add. Must be >= 0.
	Amount int64

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c GrantXPCommand) Validate() error {
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

// GrantXPResult contains the result of a grant.
type GrantXPResult struct {
	ActorID shared.ActorID
	SkillID shared.SkillID
	Amount  shared.XP

	// Total is the skill's experience after the grant.
	Total shared.XP

	// Known is false when the skill resolves to no node. The grant is still
	// recorded; unknown experience is ignored by analysis.
	Known bool

	// Dynamic is true when the skill resolved to a synthesized node.
	Dynamic bool

	Events []shared.Event
}

// GrantXPHandlerConfig contains configuration for the handler.
type GrantXPHandlerConfig struct {
	// RejectUnknownSkills makes grants to skills no tree resolves fail with ErrNotFound.
	RejectUnknownSkills bool
}

// DefaultGrantXPHandlerConfig returns default configuration.
func DefaultGrantXPHandlerConfig() GrantXPHandlerConfig {
	return GrantXPHandlerConfig{RejectUnknownSkills: false}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPHandler handles the GrantXPCommand.
type GrantXPHandler struct {
	book           *ledger.Book
	registry       *skilltree.Registry
	eventPublisher shared.EventPublisher
	config         GrantXPHandlerConfig
}

// NewGrantXPHandler creates a new GrantXPHandler.
func NewGrantXPHandler(
	book *ledger.Book,
	registry *skilltree.Registry,
	eventPublisher shared.EventPublisher,
	config GrantXPHandlerConfig,
) *GrantXPHandler {
	return &GrantXPHandler{
		book:           book,
		registry:       registry,
		eventPublisher: eventPublisher,
		config:         config,
	}
}

// Handle executes the grant command.
func (h *GrantXPHandler) Handle(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("grant_xp: %w: %w", shared.ErrValidation, err)
	}

	target, err := resolveTarget(cmd.ActorID, cmd.SkillID, h.registry)
	if err != nil {
		return nil, fmt.Errorf("grant_xp: %w", err)
	}
	if !target.known && h.config.RejectUnknownSkills {
		return nil, fmt.Errorf("grant_xp: %w",
			shared.NewDomainError("progression", "GrantXP", shared.ErrNotFound, "unknown skill "+target.skill.String()))
	}

	l, err := h.book.GetOrLoad(ctx, target.actor)
	if err != nil {
		return nil, fmt.Errorf("grant_xp: failed to get ledger: %w", err)
	}

	amount := shared.XP(cmd.Amount)
	total, err := l.Add(target.skill, amount)
	if err != nil {
		return nil, fmt.Errorf("grant_xp: %w", err)
	}

	event := shared.NewXPGrantedEvent(target.actor, target.skill, amount, total)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	shared.PublishSafe(h.eventPublisher, event)

	return &GrantXPResult{
		ActorID: target.actor,
		SkillID: target.skill,
		Amount:  amount,
		Total:   total,
		Known:   target.known,
		Dynamic: target.dynamic,
		Events:  []shared.Event{event},
	}, nil
}

// target is a validated actor/skill pair.
type target struct {
	actor   shared.ActorID
	skill   shared.SkillID
	known   bool
	dynamic bool
}

func resolveTarget(actorID, skillID string, registry *skilltree.Registry) (target, error) {
	actor, err := shared.NewActorID(actorID)
	if err != nil {
		return target{}, err
	}
	skill, err := shared.NewSkillID(skillID)
	if err != nil {
		return target{}, err
	}
	t := target{actor: actor, skill: skill}
	if registry != nil {
		if n, ok := registry.Resolve(skill); ok {
			t.known = true
			t.dynamic = n.IsSynthetic()
		}
	}
	return t, nil
}
