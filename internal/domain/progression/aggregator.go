package progression

import (
	"math"
	"sort"
	"sync"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// TreeCatalog is the view of the registry the aggregator needs.
type TreeCatalog interface {
	// TreeNames returns the registered tree names, sorted.
	TreeNames() []string
	// ResolveAll returns every node sharing id across trees.
	ResolveAll(id shared.SkillID) []*skilltree.Node
}

// Weights maps tree name to an actor-specific weight.
type Weights map[string]float64

// Clone returns an independent copy.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// TreeActivity is the per-tree input of the weight formula.
type TreeActivity struct {
	Tree     string
	Metrics  SpecializationMetrics
	Activity float64
}

// Aggregator computes and caches per-actor tree weights and reconciles
// per-tree EffectiveXP values of one skill into a single value.
type Aggregator struct {
	catalog TreeCatalog
	events  shared.EventPublisher

	mu      sync.RWMutex
	weights map[shared.ActorID]Weights
}

// NewAggregator creates an Aggregator. events may be nil.
func NewAggregator(catalog TreeCatalog, events shared.EventPublisher) *Aggregator {
	return &Aggregator{
		catalog: catalog,
		events:  events,
		weights: make(map[shared.ActorID]Weights),
	}
}

// TreeActivities computes the metrics and activity of every registered tree
// for a snapshot. All entries of a tree form one group, and
// activity = sum(xp) * (1 + averageDepth/5 + score).
func (a *Aggregator) TreeActivities(snap ledger.Snapshot) []TreeActivity {
	names := a.catalog.TreeNames()
	byTree := make(map[string][]member, len(names))
	for _, e := range snap.Entries() {
		for _, node := range a.catalog.ResolveAll(e.SkillID) {
			byTree[node.TreeName()] = append(byTree[node.TreeName()], member{node: node, xp: e.XP})
		}
	}

	out := make([]TreeActivity, 0, len(names))
	for _, name := range names {
		m := computeMetrics(name, byTree[name])
		out = append(out, TreeActivity{
			Tree:     name,
			Metrics:  m,
			Activity: m.TotalXP.Float() * (1 + m.AverageDepth/activityDepthNorm + m.Score),
		})
	}
	return out
}

// RefreshWeights recomputes and caches the actor's tree weights:
// weight = 0.5 + 0.5*activity/totalActivity. With no activity at all every
// registered tree gets the equal weight 1.
func (a *Aggregator) RefreshWeights(snap ledger.Snapshot) Weights {
	activities := a.TreeActivities(snap)

	var total float64
	for _, ta := range activities {
		total += ta.Activity
	}

	w := make(Weights, len(activities))
	for _, ta := range activities {
		if total <= 0 {
			w[ta.Tree] = equalWeight
			continue
		}
		w[ta.Tree] = weightFloor + weightSpan*(ta.Activity/total)
	}

	a.mu.Lock()
	a.weights[snap.Actor()] = w
	a.mu.Unlock()

	shared.PublishSafe(a.events, shared.NewWeightsRefreshedEvent(snap.Actor(), w, total))
	return w.Clone()
}

// GetWeights returns the cached weights of an actor, or equal weights for
// every registered tree when none were computed yet.
func (a *Aggregator) GetWeights(actor shared.ActorID) Weights {
	if w, ok := a.cached(actor); ok {
		return w.Clone()
	}
	return a.equalWeights()
}

// HasWeights reports whether weights are cached for the actor.
func (a *Aggregator) HasWeights(actor shared.ActorID) bool {
	_, ok := a.cached(actor)
	return ok
}

func (a *Aggregator) cached(actor shared.ActorID) (Weights, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	w, ok := a.weights[actor]
	return w, ok
}

func (a *Aggregator) equalWeights() Weights {
	names := a.catalog.TreeNames()
	w := make(Weights, len(names))
	for _, n := range names {
		w[n] = equalWeight
	}
	return w
}

// WeightOf returns the weight used for a tree during aggregation. A tree
// absent from a computed weight map counts as having no activity.
func (a *Aggregator) WeightOf(actor shared.ActorID, tree string) float64 {
	w, ok := a.cached(actor)
	return weightIn(w, ok, tree)
}

// weightIn resolves a tree's weight from one cached map. Refreshes replace
// the map rather than mutate it, so a map read once stays consistent.
func weightIn(w Weights, computed bool, tree string) float64 {
	if !computed {
		return equalWeight
	}
	if v, ok := w[tree]; ok {
		return v
	}
	return weightFloor
}

// Aggregate combines per-tree values of one skill into a single EffectiveXP:
// each component is sum(value*weight)/sum(weight), rounded to whole XP.
// Capacity is averaged with the same weights and floored at 1.
// With no trees supplied the zero EffectiveXP is returned.
func (a *Aggregator) Aggregate(actor shared.ActorID, perTree map[string]EffectiveXP) EffectiveXP {
	if len(perTree) == 0 {
		return EffectiveXP{}
	}

	trees := make([]string, 0, len(perTree))
	for t := range perTree {
		trees = append(trees, t)
	}
	sort.Strings(trees)

	cached, computed := a.cached(actor)
	var sumW, intrinsic, honorary, capacity float64
	for _, t := range trees {
		v := perTree[t]
		w := weightIn(cached, computed, t)
		sumW += w
		intrinsic += v.Intrinsic().Float() * w
		honorary += v.Honorary().Float() * w
		capacity += v.Capacity().Float() * w
	}
	if sumW <= 0 {
		return EffectiveXP{}
	}

	capXP := shared.XP(math.Round(capacity / sumW))
	if capXP < 1 {
		capXP = 1
	}
	out, err := NewEffectiveXP(
		shared.XP(math.Round(intrinsic/sumW)),
		shared.XP(math.Round(honorary/sumW)),
		capXP,
	)
	if err != nil {
		// Unreachable: inputs were validated and weights are positive.
		return EffectiveXP{}
	}
	return out
}

// Clear drops the cached weights of an actor.
func (a *Aggregator) Clear(actor shared.ActorID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.weights, actor)
}
