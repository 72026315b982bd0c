package ledger

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// Book holds the loaded ledgers of all actors. Ledgers are created lazily on
// first access, loaded through the Store when one is configured.
type Book struct {
	store Store

	mu      sync.RWMutex
	ledgers map[shared.ActorID]*Ledger

	loads singleflight.Group
}

// NewBook creates a Book. A nil store means every actor starts empty.
func NewBook(store Store) *Book {
	return &Book{
		store:   store,
		ledgers: make(map[shared.ActorID]*Ledger),
	}
}

// Get returns an already loaded ledger.
func (b *Book) Get(actor shared.ActorID) (*Ledger, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.ledgers[actor]
	return l, ok
}

// GetOrLoad returns the actor's ledger, loading it on first access.
// Concurrent first accesses for the same actor share one load.
// An actor unknown to the store gets a fresh, clean, empty ledger.
func (b *Book) GetOrLoad(ctx context.Context, actor shared.ActorID) (*Ledger, error) {
	if !actor.IsValid() {
		return nil, shared.Detail(shared.ErrInvalidActorID, "%q", actor)
	}
	if l, ok := b.Get(actor); ok {
		return l, nil
	}

	v, err, _ := b.loads.Do(actor.String(), func() (interface{}, error) {
		if l, ok := b.Get(actor); ok {
			return l, nil
		}

		l, err := b.load(ctx, actor)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.ledgers[actor]; ok {
			return existing, nil
		}
		b.ledgers[actor] = l
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Ledger), nil
}

func (b *Book) load(ctx context.Context, actor shared.ActorID) (*Ledger, error) {
	if b.store == nil {
		return New(actor), nil
	}
	contents, found, err := b.store.Load(ctx, actor)
	if err != nil {
		return nil, shared.WrapError("ledger", "Load", shared.ErrExternalService,
			"failed to load ledger for "+actor.String(), err)
	}
	if !found {
		return New(actor), nil
	}
	return FromContents(actor, contents)
}

// Remove drops an actor's ledger from memory. It reports whether one was loaded.
func (b *Book) Remove(actor shared.ActorID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ledgers[actor]
	delete(b.ledgers, actor)
	return ok
}

// Actors returns the ids of all loaded actors, sorted.
func (b *Book) Actors() []shared.ActorID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedActors(b.ledgers, func(*Ledger) bool { return true })
}

// Dirty returns the ids of loaded actors with unsaved mutations, sorted.
func (b *Book) Dirty() []shared.ActorID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedActors(b.ledgers, (*Ledger).IsDirty)
}

// Len returns the number of loaded ledgers.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ledgers)
}

func sortedActors(ledgers map[shared.ActorID]*Ledger, keep func(*Ledger) bool) []shared.ActorID {
	out := make([]shared.ActorID, 0, len(ledgers))
	for id, l := range ledgers {
		if keep(l) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
