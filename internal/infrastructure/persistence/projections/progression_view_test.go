package projections

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

func state(actor string, version uint64, groups map[string]progression.SpecializationMetrics) progression.ProjectedState {
	return progression.ProjectedState{
		Actor:      shared.ActorID(actor),
		Version:    version,
		Groups:     groups,
		Weights:    progression.Weights{"main": 1},
		ComputedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func metrics(score float64, xp shared.XP) progression.SpecializationMetrics {
	return progression.SpecializationMetrics{Score: score, TotalXP: xp, MaxDepth: 2}
}

func TestProgressionView_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	v := NewProgressionView()

	require.NoError(t, v.Save(ctx, state("amy", 3, map[string]progression.SpecializationMetrics{"farming": metrics(0.8, 120)})))

	got, found, err := v.Get(ctx, "amy")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(3), got.Version)

	got.Weights["main"] = 99
	again, _, _ := v.Get(ctx, "amy")
	assert.Equal(t, 1.0, again.Weights["main"])

	require.NoError(t, v.Delete(ctx, "amy"))
	_, found, err = v.Get(ctx, "amy")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, v.Delete(ctx, "nobody"))
}

func TestProgressionView_IgnoresOlderVersion(t *testing.T) {
	ctx := context.Background()
	v := NewProgressionView()

	require.NoError(t, v.Save(ctx, state("amy", 5, nil)))
	require.NoError(t, v.Save(ctx, state("amy", 4, nil)))

	got, _, _ := v.Get(ctx, "amy")
	assert.Equal(t, uint64(5), got.Version)
}

func TestProgressionView_RejectsEmptyActor(t *testing.T) {
	err := NewProgressionView().Save(context.Background(), state("", 1, nil))
	assert.ErrorIs(t, err, shared.ErrInvalidActorID)
}

func TestProgressionView_TopSpecialists(t *testing.T) {
	ctx := context.Background()
	v := NewProgressionView()

	require.NoError(t, v.Save(ctx, state("amy", 1, map[string]progression.SpecializationMetrics{
		"farming": metrics(0.9, 100),
		"mining":  metrics(0.2, 10),
	})))
	require.NoError(t, v.Save(ctx, state("bob", 1, map[string]progression.SpecializationMetrics{
		"farming": metrics(0.9, 100),
	})))
	require.NoError(t, v.Save(ctx, state("cat", 1, map[string]progression.SpecializationMetrics{
		"farming":               metrics(0.5, 300),
		"cluster:farming.crops": metrics(0.7, 200),
	})))

	top := v.TopSpecialists("farming", 0)
	require.Len(t, top, 3)
	assert.Equal(t, "amy", top[0].Actor)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "bob", top[1].Actor)
	assert.Equal(t, 1, top[1].Rank)
	assert.Equal(t, "cat", top[2].Actor)
	assert.Equal(t, 3, top[2].Rank)

	assert.Len(t, v.TopSpecialists("farming", 1), 1)
	assert.Empty(t, v.TopSpecialists("fishing", 5))
	assert.Equal(t, []string{"cluster:farming.crops", "farming", "mining"}, v.Groups())

	meta := v.Metadata()
	assert.Equal(t, 3, meta.Actors)
	assert.Equal(t, 3, meta.Groups)
	assert.Equal(t, 1, meta.Clusters)
	assert.Equal(t, int64(3), meta.Version)

	require.NoError(t, v.Delete(ctx, "amy"))
	top = v.TopSpecialists("farming", 0)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].Actor)
}
