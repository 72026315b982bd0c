package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

func TestLedgerStore_RoundTripCopies(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	in := ledger.Contents{Entries: map[shared.SkillID]shared.XP{"farming.crops": 40}, LastModified: at}
	require.NoError(t, s.Save(ctx, "amy", in))
	in.Entries["farming.crops"] = 1

	got, found, err := s.Load(ctx, "amy")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, shared.XP(40), got.Entries["farming.crops"])
	assert.Equal(t, at, got.LastModified)

	got.Entries["mining"] = 5
	again, _, _ := s.Load(ctx, "amy")
	assert.NotContains(t, again.Entries, shared.SkillID("mining"))
	assert.Equal(t, 1, s.Saves())
}

func TestLedgerStore_UnknownAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	_, found, err := s.Load(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "zed", ledger.Contents{}))
	require.NoError(t, s.Save(ctx, "amy", ledger.Contents{}))
	actors, err := s.Actors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shared.ActorID{"amy", "zed"}, actors)

	require.NoError(t, s.Delete(ctx, "zed"))
	require.NoError(t, s.Delete(ctx, "ghost"))
	actors, _ = s.Actors(ctx)
	assert.Equal(t, []shared.ActorID{"amy"}, actors)
}

func TestLedgerStore_RejectsNegativeXP(t *testing.T) {
	s := NewLedgerStore()
	err := s.Save(context.Background(), "amy", ledger.Contents{Entries: map[shared.SkillID]shared.XP{"a": -1}})
	assert.ErrorIs(t, err, shared.ErrNegativeXP)
	assert.Zero(t, s.Saves())
}

func TestLedgerStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewLedgerStore()

	assert.ErrorIs(t, s.Save(ctx, "amy", ledger.Contents{}), context.Canceled)
	_, _, err := s.Load(ctx, "amy")
	assert.ErrorIs(t, err, context.Canceled)
}
