package progression

import (
	"math"
	"strings"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// SpecializationMetrics describes how an actor's experience is shaped within one group.
// Metrics are always recomputed wholesale from a snapshot, never patched.
type SpecializationMetrics struct {
	GroupKey     string    `json:"group_key"`
	MaxDepth     int       `json:"max_depth"`
	Breadth      int       `json:"breadth"`       // distinct depth-1 branches touched
	AverageDepth float64   `json:"average_depth"` // xp-weighted
	Score        float64   `json:"score"`         // [0,1], 1 = deep and narrow
	TotalXP      shared.XP `json:"total_xp"`
	Skills       int       `json:"skills"`
}

// IsCluster reports whether the group is an emergent dynamic cluster.
func (m SpecializationMetrics) IsCluster() bool {
	return strings.HasPrefix(m.GroupKey, ClusterKeyPrefix)
}

// SpecializationScore returns min(1, maxDepth/(breadth+1)/5). It is
// non-decreasing in maxDepth and non-increasing in breadth.
func SpecializationScore(maxDepth, breadth int) float64 {
	if maxDepth <= 0 {
		return 0
	}
	if breadth < 0 {
		breadth = 0
	}
	return math.Min(1, float64(maxDepth)/float64(breadth+1)/scoreDepthScale)
}

// member is one resolved ledger entry.
type member struct {
	node *skilltree.Node
	xp   shared.XP
}

func (m member) id() shared.SkillID { return m.node.ID() }

func (m member) depth() int { return m.node.Depth() }

// ratio returns xp/capacity.
func (m member) ratio() float64 {
	return m.xp.Float() / m.node.Capacity().Float()
}

// computeMetrics derives the metrics of one group from its members.
func computeMetrics(key string, members []member) SpecializationMetrics {
	m := SpecializationMetrics{GroupKey: key, Skills: len(members)}

	branches := make(map[shared.SkillID]struct{})
	var weightedDepth float64
	for _, mem := range members {
		d := mem.depth()
		if d > m.MaxDepth {
			m.MaxDepth = d
		}
		if b, ok := mem.node.AncestorAtDepth(1); ok {
			branches[b.ID()] = struct{}{}
		}
		m.TotalXP = m.TotalXP.SaturatingAdd(mem.xp)
		weightedDepth += float64(d) * mem.xp.Float()
	}
	m.Breadth = len(branches)
	if m.TotalXP > 0 {
		m.AverageDepth = weightedDepth / m.TotalXP.Float()
	}
	m.Score = SpecializationScore(m.MaxDepth, m.Breadth)
	return m
}
