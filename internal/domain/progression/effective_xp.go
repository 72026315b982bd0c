// Package progression derives specialization metrics, multipliers and
// multi-tree aggregates from ledger snapshots and the skill taxonomy.
// Everything here is a pure computation over immutable inputs; the only side
// effects are diagnostic events sent to an injected publisher.
package progression

import (
	"fmt"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// EffectiveXP is the immutable experience value of one skill as seen by
// downstream systems: intrinsic (actor-earned) plus honorary (cross-tree or
// transfer-derived) experience measured against a capacity.
type EffectiveXP struct {
	intrinsic shared.XP
	honorary  shared.XP
	capacity  shared.XP
	progress  float64
}

// NewEffectiveXP validates the components and computes the total and progress.
func NewEffectiveXP(intrinsic, honorary, capacity shared.XP) (EffectiveXP, error) {
	if intrinsic < 0 || honorary < 0 {
		return EffectiveXP{}, shared.Detail(shared.ErrInvalidEffectiveXP,
			"intrinsic=%d honorary=%d", intrinsic, honorary)
	}
	if capacity <= 0 {
		return EffectiveXP{}, shared.Detail(shared.ErrInvalidCapacity, "capacity=%d", capacity)
	}
	total := intrinsic + honorary
	return EffectiveXP{
		intrinsic: intrinsic,
		honorary:  honorary,
		capacity:  capacity,
		progress:  clamp01(total.Float() / capacity.Float()),
	}, nil
}

// Intrinsic returns the actor-owned experience.
func (e EffectiveXP) Intrinsic() shared.XP { return e.intrinsic }

// Honorary returns the derived experience.
func (e EffectiveXP) Honorary() shared.XP { return e.honorary }

// Total returns intrinsic plus honorary experience.
func (e EffectiveXP) Total() shared.XP { return e.intrinsic + e.honorary }

// Capacity returns the XP amount representing full progress. Zero for the zero value.
func (e EffectiveXP) Capacity() shared.XP { return e.capacity }

// ProgressPercent returns total/capacity clamped to [0,1].
func (e EffectiveXP) ProgressPercent() float64 { return e.progress }

// IsZero reports whether e is the zero EffectiveXP.
func (e EffectiveXP) IsZero() bool { return e == EffectiveXP{} }

// String returns a compact representation for logs and the CLI.
func (e EffectiveXP) String() string {
	return fmt.Sprintf("%d+%d/%d (%.1f%%)", e.intrinsic, e.honorary, e.capacity, e.progress*100)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
