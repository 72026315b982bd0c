package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH PROGRESSION COMMAND
// Re-analyzes an actor's ledger, recomputes tree weights from the same snapshot
// and publishes the derived state to the projection.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshProgressionCommand selects the actor to refresh.
type RefreshProgressionCommand struct {
	ActorID       string
	CorrelationID string
}

// Validate validates the command.
func (c RefreshProgressionCommand) Validate() error {
	if c.ActorID == "" {
		return errors.New("actor_id is required")
	}
	return nil
}

// RefreshProgressionResult contains the refreshed state.
type RefreshProgressionResult struct {
	Analysis progression.Analysis
	Weights  progression.Weights
	State    progression.ProjectedState

	// Projected is true when the state reached the projection.
	Projected bool
}

// RefreshProgressionHandler handles the RefreshProgressionCommand.
type RefreshProgressionHandler struct {
	book       *ledger.Book
	analyzer   *progression.Analyzer
	aggregator *progression.Aggregator
	projection progression.Projection
	now        func() time.Time
}

// NewRefreshProgressionHandler creates a new RefreshProgressionHandler. projection may be nil.
func NewRefreshProgressionHandler(
	book *ledger.Book,
	analyzer *progression.Analyzer,
	aggregator *progression.Aggregator,
	projection progression.Projection,
) *RefreshProgressionHandler {
	return &RefreshProgressionHandler{
		book:       book,
		analyzer:   analyzer,
		aggregator: aggregator,
		projection: projection,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the refresh command.
func (h *RefreshProgressionHandler) Handle(ctx context.Context, cmd RefreshProgressionCommand) (*RefreshProgressionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("refresh_progression: %w: %w", shared.ErrValidation, err)
	}
	actor, err := shared.NewActorID(cmd.ActorID)
	if err != nil {
		return nil, fmt.Errorf("refresh_progression: %w", err)
	}

	l, err := h.book.GetOrLoad(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("refresh_progression: failed to get ledger: %w", err)
	}

	snap := l.Snapshot()
	analysis := h.analyzer.Analyze(snap)
	weights := h.aggregator.RefreshWeights(snap)
	state := progression.NewProjectedState(analysis, weights, h.now())

	result := &RefreshProgressionResult{
		Analysis: analysis,
		Weights:  weights,
		State:    state,
	}
	if h.projection != nil {
		if err := h.projection.Save(ctx, state); err != nil {
			return result, fmt.Errorf("refresh_progression: failed to save projection: %w", err)
		}
		result.Projected = true
	}
	return result, nil
}
