package progression

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

func mustEffective(t *testing.T, intrinsic, honorary, capacity shared.XP) EffectiveXP {
	t.Helper()
	e, err := NewEffectiveXP(intrinsic, honorary, capacity)
	require.NoError(t, err)
	return e
}

func TestEffectiveXP_ProgressIsClamped(t *testing.T) {
	for _, c := range []shared.XP{1, 7, 100, 1000} {
		for _, xp := range []shared.XP{0, 1, 6, 99, 100, 101, 5000} {
			e := mustEffective(t, xp, 0, c)
			p := e.ProgressPercent()
			assert.True(t, p >= 0 && p <= 1)
			want := xp.Float() / c.Float()
			if want > 1 {
				want = 1
			}
			assert.InDelta(t, want, p, 1e-12)
		}
	}
}

func TestEffectiveXP_Validation(t *testing.T) {
	e := mustEffective(t, 30, 20, 100)
	assert.Equal(t, shared.XP(50), e.Total())
	assert.InDelta(t, 0.5, e.ProgressPercent(), 1e-12)

	_, err := NewEffectiveXP(-1, 0, 100)
	assert.ErrorIs(t, err, shared.ErrInvalidEffectiveXP)
	_, err = NewEffectiveXP(0, -1, 100)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
	_, err = NewEffectiveXP(1, 1, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidCapacity)

	assert.True(t, EffectiveXP{}.IsZero())
	assert.False(t, e.IsZero())
}

func TestAggregator_MainAndSeasonal(t *testing.T) {
	reg := newRegistry(t, mainWithX(), seasonalTree())
	rec := shared.NewEventRecorder()
	agg := NewAggregator(reg, rec)

	// Before any activity both trees get equal weights.
	assert.Equal(t, Weights{"main": 1.0, "seasonal": 1.0}, agg.GetWeights("p1"))
	assert.False(t, agg.HasWeights("p1"))

	w := agg.RefreshWeights(snapshot(map[shared.SkillID]shared.XP{"mining.ore": 400}))
	assert.InDelta(t, 1.0, w["main"], 1e-12)
	assert.InDelta(t, 0.5, w["seasonal"], 1e-12)
	assert.True(t, agg.HasWeights("p1"))
	assert.Len(t, rec.OfType(shared.EventWeightsRefreshed), 1)

	mainValue := mustEffective(t, 450, 0, 500)
	seasonalValue := mustEffective(t, 0, 30, 500)
	got := agg.Aggregate("p1", map[string]EffectiveXP{
		"main":     mainValue,
		"seasonal": seasonalValue,
	})

	// (450*1 + 0*0.5)/1.5 = 300, (0*1 + 30*0.5)/1.5 = 10
	assert.Equal(t, shared.XP(300), got.Intrinsic())
	assert.Equal(t, shared.XP(10), got.Honorary())
	assert.Equal(t, shared.XP(500), got.Capacity())
	assert.Greater(t, got.Intrinsic(), seasonalValue.Intrinsic())
}

func TestAggregator_AggregateReadsOneWeightSet(t *testing.T) {
	reg := newRegistry(t, mainWithX(), seasonalTree())
	agg := NewAggregator(reg, nil)

	mainActive := snapshot(map[shared.SkillID]shared.XP{"mining.ore": 400})
	seasonalActive := snapshot(map[shared.SkillID]shared.XP{"festival": 400})
	agg.RefreshWeights(mainActive)

	values := map[string]EffectiveXP{
		"main":     mustEffective(t, 450, 0, 500),
		"seasonal": mustEffective(t, 0, 30, 500),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				agg.RefreshWeights(seasonalActive)
			} else {
				agg.RefreshWeights(mainActive)
			}
		}
	}()

	// main 1.0/seasonal 0.5 gives 300/10, main 0.5/seasonal 1.0 gives 150/20.
	// Mixing the two sets would give 225/15.
	for i := 0; i < 500; i++ {
		got := agg.Aggregate("p1", values)
		pair := [2]shared.XP{got.Intrinsic(), got.Honorary()}
		assert.Contains(t, [][2]shared.XP{{300, 10}, {150, 20}}, pair)
	}
	wg.Wait()
}

func TestWeightIn(t *testing.T) {
	w := Weights{"main": 0.8}
	assert.Equal(t, equalWeight, weightIn(nil, false, "main"))
	assert.Equal(t, 0.8, weightIn(w, true, "main"))
	assert.Equal(t, weightFloor, weightIn(w, true, "seasonal"))
}

func TestAggregator_SingleTreeIdentity(t *testing.T) {
	reg := newRegistry(t, mainTree())
	agg := NewAggregator(reg, nil)
	v := mustEffective(t, 733, 41, 1000)

	assert.Equal(t, v, agg.Aggregate("p1", map[string]EffectiveXP{"main": v}))

	agg.RefreshWeights(snapshot(map[shared.SkillID]shared.XP{"farming.crops.wheat": 120}))
	assert.Equal(t, v, agg.Aggregate("p1", map[string]EffectiveXP{"main": v}))
}

func TestAggregator_EmptyInputYieldsZero(t *testing.T) {
	agg := NewAggregator(newRegistry(t, mainTree()), nil)
	assert.True(t, agg.Aggregate("p1", nil).IsZero())
}

func TestAggregator_NoActivityFallsBackToEqualWeights(t *testing.T) {
	reg := newRegistry(t, mainWithX(), seasonalTree())
	agg := NewAggregator(reg, nil)

	w := agg.RefreshWeights(snapshot(map[shared.SkillID]shared.XP{"unknown": 50}))
	assert.Equal(t, Weights{"main": 1.0, "seasonal": 1.0}, w)
}

func TestAggregator_SharedSkillCountsForBothTrees(t *testing.T) {
	reg := newRegistry(t, mainWithX(), seasonalTree())
	agg := NewAggregator(reg, nil)

	acts := agg.TreeActivities(snapshot(map[shared.SkillID]shared.XP{"x": 100}))
	require.Len(t, acts, 2)
	assert.InDelta(t, acts[0].Activity, acts[1].Activity, 1e-9)

	w := agg.RefreshWeights(snapshot(map[shared.SkillID]shared.XP{"x": 100}))
	assert.InDelta(t, 0.75, w["main"], 1e-9)
	assert.InDelta(t, 0.75, w["seasonal"], 1e-9)
}

func TestAggregator_TreeActivityFormula(t *testing.T) {
	reg := newRegistry(t, mainTree())
	agg := NewAggregator(reg, nil)

	acts := agg.TreeActivities(snapshot(map[shared.SkillID]shared.XP{
		"farming.crops.wheat": 100, // depth 3
		"mining.ore":          100, // depth 2
	}))
	require.Len(t, acts, 1)
	m := acts[0].Metrics
	assert.Equal(t, 3, m.MaxDepth)
	assert.Equal(t, 2, m.Breadth)
	assert.InDelta(t, 2.5, m.AverageDepth, 1e-9)
	assert.InDelta(t, 0.2, m.Score, 1e-9)
	assert.InDelta(t, 200*(1+2.5/5+0.2), acts[0].Activity, 1e-9)
}

func TestAggregator_Clear(t *testing.T) {
	reg := newRegistry(t, mainWithX(), seasonalTree())
	agg := NewAggregator(reg, nil)

	agg.RefreshWeights(snapshot(map[shared.SkillID]shared.XP{"mining.ore": 400}))
	agg.Clear("p1")

	assert.False(t, agg.HasWeights("p1"))
	assert.Equal(t, Weights{"main": 1.0, "seasonal": 1.0}, agg.GetWeights("p1"))
}

func TestAggregator_UnknownTreeInCachedMapGetsFloorWeight(t *testing.T) {
	reg := newRegistry(t, mainTree())
	agg := NewAggregator(reg, nil)
	agg.RefreshWeights(snapshot(map[shared.SkillID]shared.XP{"mining.ore": 10}))

	// main weighs 1.0, "ghost" is not registered and counts as 0.5.
	got := agg.Aggregate("p1", map[string]EffectiveXP{
		"main":  mustEffective(t, 300, 0, 1000),
		"ghost": mustEffective(t, 0, 0, 1000),
	})
	assert.Equal(t, shared.XP(200), got.Intrinsic())
}

func TestAggregator_ReturnedWeightsAreCopies(t *testing.T) {
	agg := NewAggregator(newRegistry(t, mainTree()), nil)
	w := agg.RefreshWeights(snapshot(map[shared.SkillID]shared.XP{"mining.ore": 10}))
	w["main"] = 42

	assert.InDelta(t, 1.0, agg.GetWeights("p1")["main"], 1e-12)
}
