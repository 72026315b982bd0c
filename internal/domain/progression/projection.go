package progression

import (
	"context"
	"time"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ProjectedState is the read model published for downstream gameplay systems:
// the latest metrics and weights of one actor.
type ProjectedState struct {
	Actor      shared.ActorID                   `json:"actor_id"`
	Version    uint64                           `json:"version"`
	Groups     map[string]SpecializationMetrics `json:"groups"`
	Clusters   []Cluster                        `json:"clusters,omitempty"`
	Weights    Weights                          `json:"weights"`
	ComputedAt time.Time                        `json:"computed_at"`
}

// NewProjectedState assembles a projection from an analysis and weights.
func NewProjectedState(analysis Analysis, weights Weights, at time.Time) ProjectedState {
	groups := make(map[string]SpecializationMetrics, len(analysis.Groups))
	for k, v := range analysis.Groups {
		groups[k] = v
	}
	return ProjectedState{
		Actor:      analysis.Actor,
		Version:    analysis.Version,
		Groups:     groups,
		Clusters:   append([]Cluster(nil), analysis.Clusters...),
		Weights:    weights.Clone(),
		ComputedAt: at,
	}
}

// Projection stores derived progression state for readers outside the engine.
// Implementations live in the infrastructure layer.
type Projection interface {
	// Save replaces the projected state of an actor.
	Save(ctx context.Context, state ProjectedState) error

	// Get returns the projected state. found is false when nothing was projected.
	Get(ctx context.Context, actor shared.ActorID) (state ProjectedState, found bool, err error)

	// Delete drops the projected state of an actor.
	Delete(ctx context.Context, actor shared.ActorID) error
}
