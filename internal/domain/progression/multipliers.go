package progression

import (
	"math"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURE FORMULAS
// ══════════════════════════════════════════════════════════════════════════════

// Penalty returns the penalty multiplier of a node.
//
// Generalists (score < 0.3) get 1 - depth*0.15, specialists (score > 0.7)
// get a flat 0.5 on skills off their dominant path, everyone else gets 1.
// The generalist penalty is floored at 0.
func Penalty(depth int, score float64, onDominantPath bool) float64 {
	switch {
	case score < generalistScore:
		return math.Max(0, 1-float64(depth)*generalistFactor)
	case score > specialistScore && !onDominantPath:
		return specialistFactor
	default:
		return 1
	}
}

// HyperBonus returns 2*min(1, ratio-1.5) for ratio > 1.5 at depth >= 2, else 0.
// The result is always in [0,2].
func HyperBonus(xpRatio float64, depth int) float64 {
	if xpRatio <= hyperRatio || depth < hyperMinDepth {
		return 0
	}
	return hyperBonusFactor * math.Min(1, xpRatio-hyperRatio)
}

// BonusBreakdown itemizes the bonus multiplier.
type BonusBreakdown struct {
	Base  float64 // xpRatio*0.5
	Depth float64 // depth*0.1*score
	Spec  float64 // score*0.3
	Hyper float64
}

// Multiplier returns 1 plus every bonus component.
func (b BonusBreakdown) Multiplier() float64 {
	return 1 + b.Base + b.Depth + b.Spec + b.Hyper
}

// Bonus computes the bonus components for a node. xpRatio is uncapped.
func Bonus(xpRatio float64, depth int, score float64, withHyper bool) BonusBreakdown {
	b := BonusBreakdown{
		Base:  xpRatio * baseBonusFactor,
		Depth: float64(depth) * depthBonusFactor * score,
		Spec:  score * specBonusFactor,
	}
	if withHyper {
		b.Hyper = HyperBonus(xpRatio, depth)
	}
	return b
}

// DominantPathXP sums the snapshot xp of a node and all its ancestors.
func DominantPathXP(node *skilltree.Node, snap ledger.Snapshot) shared.XP {
	total := snap.Get(node.ID())
	for _, anc := range node.Ancestors() {
		total = total.SaturatingAdd(snap.Get(anc.ID()))
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// MULTIPLIERS
// ══════════════════════════════════════════════════════════════════════════════

// Multipliers is the full multiplier derivation for one skill of one actor.
type Multipliers struct {
	SkillID        shared.SkillID
	GroupKey       string
	Depth          int
	XP             shared.XP
	XPRatio        float64
	Score          float64
	OnDominantPath bool
	Penalty        float64
	Bonus          float64
	Breakdown      BonusBreakdown
}

// Multipliers derives the penalty and bonus multipliers of a node from the
// actor's snapshot and the metrics of the node's group. A large hyper bonus is
// reported to the event publisher; there are no other side effects.
func (a *Analyzer) Multipliers(node *skilltree.Node, snap ledger.Snapshot, metrics SpecializationMetrics) Multipliers {
	xp := snap.Get(node.ID())
	depth := node.Depth()
	ratio := xp.Float() / node.Capacity().Float()
	onPath := DominantPathXP(node, snap) > a.tuning.DominantPathThreshold

	m := Multipliers{
		SkillID:        node.ID(),
		GroupKey:       metrics.GroupKey,
		Depth:          depth,
		XP:             xp,
		XPRatio:        ratio,
		Score:          metrics.Score,
		OnDominantPath: onPath,
		Breakdown:      Bonus(ratio, depth, metrics.Score, a.tuning.HyperBonus),
	}
	m.Bonus = m.Breakdown.Multiplier()

	m.Penalty = 1
	if a.tuning.SpecialistPenalty || metrics.Score < generalistScore {
		m.Penalty = Penalty(depth, metrics.Score, onPath)
	}

	if m.Breakdown.Hyper > 0 && m.Breakdown.Hyper >= a.tuning.HyperBonusEventThreshold {
		shared.PublishSafe(a.events, shared.NewHyperBonusEvent(snap.Actor(), node.ID(), depth, ratio, m.Breakdown.Hyper))
	}
	return m
}
