package progression

import (
	"sort"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// Analysis is the complete result of one analysis pass over a snapshot.
type Analysis struct {
	Actor   shared.ActorID
	Version uint64

	// Groups maps group key to its metrics. It replaces any earlier result.
	Groups map[string]SpecializationMetrics

	// Assignments maps every resolved skill to its group key.
	Assignments map[shared.SkillID]string

	// Clusters lists the emergent clusters that formed, in discovery order.
	Clusters []Cluster

	// Unresolved lists skills that could not be resolved and were skipped.
	Unresolved []shared.SkillID
}

// GroupOf returns the metrics of the group a skill was assigned to.
func (a Analysis) GroupOf(id shared.SkillID) (SpecializationMetrics, bool) {
	key, ok := a.Assignments[id]
	if !ok {
		return SpecializationMetrics{}, false
	}
	m, ok := a.Groups[key]
	return m, ok
}

// GroupKeys returns all group keys, sorted.
func (a Analysis) GroupKeys() []string {
	keys := make([]string, 0, len(a.Groups))
	for k := range a.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Analyzer computes specialization metrics and dynamic clusters.
type Analyzer struct {
	resolver skilltree.Resolver
	tuning   Tuning
	events   shared.EventPublisher
}

// NewAnalyzer creates an Analyzer. events may be nil.
func NewAnalyzer(resolver skilltree.Resolver, tuning Tuning, events shared.EventPublisher) *Analyzer {
	return &Analyzer{
		resolver: resolver,
		tuning:   tuning,
		events:   events,
	}
}

// Tuning returns the analyzer's tuning.
func (a *Analyzer) Tuning() Tuning { return a.tuning }

// DefaultGroupKey returns the group a skill belongs to outside any cluster:
// its first path segment, the top-level branch.
func DefaultGroupKey(id shared.SkillID) string {
	return id.Head()
}

// Analyze partitions the snapshot into groups and computes their metrics.
// Entries whose skill id cannot be resolved are skipped, not treated as errors.
func (a *Analyzer) Analyze(snap ledger.Snapshot) Analysis {
	result := Analysis{
		Actor:       snap.Actor(),
		Version:     snap.Version(),
		Groups:      make(map[string]SpecializationMetrics),
		Assignments: make(map[shared.SkillID]string),
	}

	entries := a.resolve(snap, &result)

	var clustered map[shared.SkillID]string
	if a.tuning.DynamicClustering {
		clustered, result.Clusters = clusterCandidates(entries)
	}

	byGroup := make(map[string][]member)
	for _, e := range entries {
		key, ok := clustered[e.id()]
		if !ok {
			key = DefaultGroupKey(e.id())
		}
		result.Assignments[e.id()] = key
		byGroup[key] = append(byGroup[key], e)
	}
	for key, members := range byGroup {
		result.Groups[key] = computeMetrics(key, members)
	}

	for _, c := range result.Clusters {
		shared.PublishSafe(a.events, shared.NewClusterFormedEvent(snap.Actor(), c.Key, c.Members, c.AverageSimilarity))
	}
	return result
}

// resolve maps snapshot entries to nodes in skill id order.
func (a *Analyzer) resolve(snap ledger.Snapshot, result *Analysis) []member {
	raw := snap.Entries()
	out := make([]member, 0, len(raw))
	for _, e := range raw {
		node, ok := a.resolver.Resolve(e.SkillID)
		if !ok {
			result.Unresolved = append(result.Unresolved, e.SkillID)
			continue
		}
		out = append(out, member{node: node, xp: e.XP})
	}
	return out
}
