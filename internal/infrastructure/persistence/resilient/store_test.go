package resilient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

type failingStore struct {
	ledger.Store
	err   error
	calls int
}

func (f *failingStore) Save(context.Context, shared.ActorID, ledger.Contents) error {
	f.calls++
	return f.err
}

func contents(xp shared.XP) ledger.Contents {
	return ledger.Contents{Entries: map[shared.SkillID]shared.XP{"mining.ore": xp}}
}

func TestStore_PassesThrough(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewLedgerStore()
	s := NewStore(inner, nil)

	require.NoError(t, s.Save(ctx, "alice", contents(7)))
	got, found, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, shared.XP(7), got.Entries["mining.ore"])

	actors, err := s.Actors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shared.ActorID{"alice"}, actors)

	require.NoError(t, s.Delete(ctx, "alice"))
	_, found, err = s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{err: errors.New("connection reset")}
	s := NewStore(inner, circuitbreaker.New("db", circuitbreaker.WithFailureThreshold(2)))

	assert.Error(t, s.Save(ctx, "alice", contents(1)))
	assert.Error(t, s.Save(ctx, "alice", contents(1)))

	err := s.Save(ctx, "alice", contents(1))
	assert.True(t, circuitbreaker.IsRejected(err))
	assert.Equal(t, 2, inner.calls)
}

func TestStore_ValidationDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.NewLedgerStore(), circuitbreaker.New("db", circuitbreaker.WithFailureThreshold(1)))

	err := s.Save(ctx, "alice", contents(-5))
	assert.ErrorIs(t, err, shared.ErrNegativeXP)
	assert.False(t, s.Breaker().IsOpen())
}
