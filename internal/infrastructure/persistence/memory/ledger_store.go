// Package memory provides a process-local ledger store for development and
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// LedgerStore implements ledger.Store with a map.
type LedgerStore struct {
	mu    sync.RWMutex
	data  map[shared.ActorID]ledger.Contents
	saves int
}

// NewLedgerStore creates an empty store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{data: make(map[shared.ActorID]ledger.Contents)}
}

var _ ledger.Store = (*LedgerStore)(nil)

// Load returns a copy of the stored contents.
func (s *LedgerStore) Load(ctx context.Context, actor shared.ActorID) (ledger.Contents, bool, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Contents{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[actor]
	if !ok {
		return ledger.Contents{}, false, nil
	}
	return cloneContents(c), true, nil
}

// Save replaces the stored contents with a copy of c.
func (s *LedgerStore) Save(ctx context.Context, actor shared.ActorID, c ledger.Contents) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for skill, xp := range c.Entries {
		if xp < 0 {
			return shared.Detail(shared.ErrNegativeXP, "skill %s has %d xp", skill, xp)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[actor] = cloneContents(c)
	s.saves++
	return nil
}

// Delete removes an actor. Unknown actors are ignored.
func (s *LedgerStore) Delete(_ context.Context, actor shared.ActorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, actor)
	return nil
}

// Actors returns every stored actor, sorted.
func (s *LedgerStore) Actors(context.Context) ([]shared.ActorID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]shared.ActorID, 0, len(s.data))
	for a := range s.data {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Saves returns how many saves succeeded.
func (s *LedgerStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func cloneContents(c ledger.Contents) ledger.Contents {
	entries := make(map[shared.SkillID]shared.XP, len(c.Entries))
	for k, v := range c.Entries {
		entries[k] = v
	}
	return ledger.Contents{Entries: entries, LastModified: c.LastModified}
}
