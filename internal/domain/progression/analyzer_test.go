package progression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

func TestSpecializationScore_FarmingOnly(t *testing.T) {
	reg := newRegistry(t, mainTree())
	a := NewAnalyzer(reg, DefaultTuning(), nil)

	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"farming.crops.wheat": 300,
		"farming.crops.corn":  200,
	}))

	require.Equal(t, []string{"farming"}, result.GroupKeys())
	m := result.Groups["farming"]
	assert.Equal(t, 3, m.MaxDepth)
	assert.Equal(t, 1, m.Breadth)
	assert.InDelta(t, 0.3, m.Score, 1e-9)
	assert.InDelta(t, 3.0, m.AverageDepth, 1e-9)
	assert.Equal(t, shared.XP(500), m.TotalXP)
	assert.Equal(t, 2, m.Skills)
	assert.False(t, m.IsCluster())
}

func TestSpecializationScore_Monotonic(t *testing.T) {
	for breadth := 0; breadth <= 10; breadth++ {
		for depth := 1; depth <= 12; depth++ {
			assert.GreaterOrEqual(t, SpecializationScore(depth, breadth), SpecializationScore(depth-1, breadth))
			assert.LessOrEqual(t, SpecializationScore(depth, breadth+1), SpecializationScore(depth, breadth))
			s := SpecializationScore(depth, breadth)
			assert.True(t, s >= 0 && s <= 1)
		}
	}
}

func TestAnalyze_XPWeightedAverageDepth(t *testing.T) {
	reg := newRegistry(t, mainTree())
	a := NewAnalyzer(reg, DefaultTuning(), nil)

	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"farming":             100, // depth 1
		"farming.crops.wheat": 300, // depth 3
	}))

	m := result.Groups["farming"]
	assert.InDelta(t, (1*100.0+3*300.0)/400.0, m.AverageDepth, 1e-9)
}

func TestAnalyze_GroupTotalSaturates(t *testing.T) {
	reg := newRegistry(t, mainTree())
	a := NewAnalyzer(reg, DefaultTuning(), nil)

	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"mining":     math.MaxInt64,
		"mining.ore": 10,
	}))

	m := result.Groups["mining"]
	assert.Equal(t, shared.XP(math.MaxInt64), m.TotalXP)
	assert.Greater(t, m.AverageDepth, 0.0)
}

func TestAnalyze_SkipsUnresolvedEntries(t *testing.T) {
	reg := newRegistry(t, mainTree())
	a := NewAnalyzer(reg, DefaultTuning(), nil)

	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"legacy.skill": 999,
		"mining.ore":   10,
	}))

	assert.Equal(t, []shared.SkillID{"legacy.skill"}, result.Unresolved)
	assert.Equal(t, []string{"mining"}, result.GroupKeys())
	_, ok := result.GroupOf("legacy.skill")
	assert.False(t, ok)
}

func TestAnalyze_PairFormsCluster(t *testing.T) {
	reg := newRegistry(t, mainTree())
	rec := shared.NewEventRecorder()
	a := NewAnalyzer(reg, DefaultTuning(), rec)

	// depth 4 overflow threshold: 1000 * (1.5 + 4/5) = 2300
	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"a.b.c.d":    2500,
		"a.b.c.e":    2600,
		"mining.ore": 50,
	}))

	require.Len(t, result.Clusters, 1)
	cl := result.Clusters[0]
	assert.Equal(t, "cluster:a.b.c", cl.Key)
	assert.Equal(t, shared.SkillID("a.b.c"), cl.Prefix)
	assert.Equal(t, []shared.SkillID{"a.b.c.d", "a.b.c.e"}, cl.Members)
	assert.Greater(t, cl.AverageSimilarity, 0.6)

	assert.Equal(t, "cluster:a.b.c", result.Assignments["a.b.c.d"])
	assert.Equal(t, "cluster:a.b.c", result.Assignments["a.b.c.e"])
	assert.Equal(t, "mining", result.Assignments["mining.ore"])

	m := result.Groups["cluster:a.b.c"]
	assert.True(t, m.IsCluster())
	assert.Equal(t, 4, m.MaxDepth)
	assert.Equal(t, 1, m.Breadth)
	assert.InDelta(t, 0.4, m.Score, 1e-9)

	events := rec.OfType(shared.EventClusterFormed)
	require.Len(t, events, 1)
	ev := events[0].(shared.ClusterFormedEvent)
	assert.Equal(t, "cluster:a.b.c", ev.ClusterKey)
	assert.Equal(t, shared.ActorID("p1"), ev.ActorID)
}

func TestAnalyze_LoneCandidateFallsBackToDefaultGroup(t *testing.T) {
	reg := newRegistry(t, mainTree())
	rec := shared.NewEventRecorder()
	a := NewAnalyzer(reg, DefaultTuning(), rec)

	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"a.b.c.d": 5000, // candidate
		"a.b.c":   1300, // heavy, not a candidate
		"a.b.c.e": 1250, // heavy, not a candidate
	}))

	assert.Empty(t, result.Clusters)
	assert.Equal(t, "a", result.Assignments["a.b.c.d"])
	assert.Equal(t, []string{"a"}, result.GroupKeys())
	assert.Empty(t, rec.OfType(shared.EventClusterFormed))
}

func TestAnalyze_DissimilarCandidatesDoNotCluster(t *testing.T) {
	reg := newRegistry(t, mainTree())
	a := NewAnalyzer(reg, DefaultTuning(), nil)

	// Both overflow but share no path prefix.
	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"a.b.c.d":             2400,
		"farming.crops.wheat": 90000,
	}))

	assert.Empty(t, result.Clusters)
	assert.Equal(t, "a", result.Assignments["a.b.c.d"])
	assert.Equal(t, "farming", result.Assignments["farming.crops.wheat"])
}

func TestAnalyze_DynamicIDsJoinClusters(t *testing.T) {
	reg := newRegistry(t, mainTree())
	a := NewAnalyzer(reg, DefaultTuning(), nil)

	// Not authored: synthesized under a.b.c.d with capacity 1000 at depth 5.
	// depth 5 overflow threshold: 1000 * (1.5 + 5/5) = 2500
	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"a.b.c.d.x": 3000,
		"a.b.c.d.y": 3100,
	}))

	require.Len(t, result.Clusters, 1)
	assert.Equal(t, "cluster:a.b.c.d", result.Clusters[0].Key)
	assert.Empty(t, result.Unresolved)
	assert.Equal(t, 5, result.Groups["cluster:a.b.c.d"].MaxDepth)
}

func TestAnalyze_ClusterRequalifiesAfterMembersMove(t *testing.T) {
	reg := newRegistry(t, mainTree())
	rec := shared.NewEventRecorder()
	a := NewAnalyzer(reg, DefaultTuning(), rec)

	// All four share a.b.c, but m and n are far closer under a.b.c.z. Once they
	// move there, p and q alone average about 0.573 and must not form a cluster.
	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"a.b.c.p":   2400,
		"a.b.c.q":   20000,
		"a.b.c.z.m": 7000,
		"a.b.c.z.n": 7000,
	}))

	require.Len(t, result.Clusters, 1)
	cl := result.Clusters[0]
	assert.Equal(t, "cluster:a.b.c.z", cl.Key)
	assert.Equal(t, []shared.SkillID{"a.b.c.z.m", "a.b.c.z.n"}, cl.Members)

	for _, c := range result.Clusters {
		assert.Greater(t, c.AverageSimilarity, 0.6, c.Key)
	}
	assert.Equal(t, "a", result.Assignments["a.b.c.p"])
	assert.Equal(t, "a", result.Assignments["a.b.c.q"])
	assert.NotContains(t, result.Groups, "cluster:a.b.c")
	assert.Len(t, rec.OfType(shared.EventClusterFormed), 1)
}

func TestAnalyze_ClusteringDisabled(t *testing.T) {
	reg := newRegistry(t, mainTree())
	tuning := DefaultTuning()
	tuning.DynamicClustering = false
	a := NewAnalyzer(reg, tuning, nil)

	result := a.Analyze(snapshot(map[shared.SkillID]shared.XP{
		"a.b.c.d": 2500,
		"a.b.c.e": 2600,
	}))

	assert.Empty(t, result.Clusters)
	assert.Equal(t, []string{"a"}, result.GroupKeys())
}

func TestSimilarity(t *testing.T) {
	// Identical depth and xp, 3 of 4 segments shared.
	s := Similarity("a.b.c.d", 4, 100, "a.b.c.e", 4, 100)
	assert.InDelta(t, 0.3+0.4+0.3*0.75, s, 1e-9)

	// Depth difference beyond 5 never goes negative.
	s = Similarity("a", 0, 100, "q.r.s.t.u.v.w", 7, 100)
	assert.InDelta(t, 0.4, s, 1e-9)

	assert.InDelta(t, Similarity("a.b", 2, 10, "a.c", 2, 40), Similarity("a.c", 2, 40, "a.b", 2, 10), 1e-12)
}

func TestIsCandidate(t *testing.T) {
	assert.False(t, IsCandidate(1, 100000, 1000), "depth below 2")
	assert.False(t, IsCandidate(2, 1899, 1000), "below threshold 1.9")
	assert.True(t, IsCandidate(2, 1901, 1000))
}
