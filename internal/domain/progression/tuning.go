package progression

import (
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// Formula constants of the specialization model.
const (
	// scoreDepthScale normalizes maxDepth/(breadth+1) into [0,1].
	scoreDepthScale = 5.0

	// Overflow detection: xp > capacity * (overflowBase + depth/overflowDepthScale).
	overflowBase       = 1.5
	overflowDepthScale = 5.0
	minCandidateDepth  = 2

	// heavyRatio is the xp/capacity ratio from which a node takes part in similarity checks.
	heavyRatio = 1.2

	minClusterMembers    = 2
	minClusterSimilarity = 0.6

	similarityDepthWeight  = 0.3
	similarityXPWeight     = 0.4
	similarityPrefixWeight = 0.3
	similarityDepthScale   = 5.0

	generalistScore  = 0.3
	specialistScore  = 0.7
	generalistFactor = 0.15
	specialistFactor = 0.5

	baseBonusFactor  = 0.5
	depthBonusFactor = 0.1
	specBonusFactor  = 0.3
	hyperBonusFactor = 2.0
	hyperRatio       = 1.5
	hyperMinDepth    = 2

	// Weight of a tree is weightFloor + weightSpan * activityShare.
	weightFloor       = 0.5
	weightSpan        = 0.5
	equalWeight       = 1.0
	activityDepthNorm = 5.0

	// ClusterKeyPrefix marks group keys of emergent clusters.
	ClusterKeyPrefix = "cluster:"
)

// Tuning holds the operator-adjustable knobs of the engine.
type Tuning struct {
	// DominantPathThreshold is the xp a node and its ancestors must exceed
	// together for the node to count as on the actor's dominant path.
	DominantPathThreshold shared.XP

	// HyperBonusEventThreshold is the hyper bonus from which a diagnostic event is emitted.
	HyperBonusEventThreshold float64

	// DynamicClustering enables emergent clusters of overflowing skills.
	DynamicClustering bool

	// HyperBonus enables the over-investment bonus.
	HyperBonus bool

	// SpecialistPenalty enables the flat penalty for off-path skills of specialists.
	SpecialistPenalty bool
}

// DefaultTuning returns the stock tuning with every feature enabled.
func DefaultTuning() Tuning {
	return Tuning{
		DominantPathThreshold:    1000,
		HyperBonusEventThreshold: 0.5,
		DynamicClustering:        true,
		HyperBonus:               true,
		SpecialistPenalty:        true,
	}
}

// Validate checks the tuning for impossible values.
func (t Tuning) Validate() error {
	if t.DominantPathThreshold < 0 {
		return shared.NewDomainError("progression", "Tuning", shared.ErrNegativeValue,
			"dominant path threshold cannot be negative")
	}
	if t.HyperBonusEventThreshold < 0 {
		return shared.NewDomainError("progression", "Tuning", shared.ErrNegativeValue,
			"hyper bonus event threshold cannot be negative")
	}
	return nil
}
