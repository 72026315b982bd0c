// Package resilient decorates ledger stores with a circuit breaker so a
// struggling database is given room to recover between flush sweeps.
package resilient

import (
	"context"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

// Store guards every call of the wrapped store with a breaker. Validation
// errors are returned unchanged and never count as breaker failures.
type Store struct {
	inner   ledger.Store
	breaker *circuitbreaker.CircuitBreaker
}

var _ ledger.Store = (*Store)(nil)

// NewStore wraps inner. A nil breaker means circuitbreaker.DatabaseBreaker.
func NewStore(inner ledger.Store, breaker *circuitbreaker.CircuitBreaker) *Store {
	if breaker == nil {
		breaker = circuitbreaker.DatabaseBreaker(nil)
	}
	return &Store{inner: inner, breaker: breaker}
}

// Breaker returns the guarding breaker.
func (s *Store) Breaker() *circuitbreaker.CircuitBreaker { return s.breaker }

// Load implements ledger.Store.
func (s *Store) Load(ctx context.Context, actor shared.ActorID) (ledger.Contents, bool, error) {
	var (
		contents ledger.Contents
		found    bool
	)
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		contents, found, err = s.inner.Load(ctx, actor)
		return err
	})
	return contents, found, err
}

// Save implements ledger.Store.
func (s *Store) Save(ctx context.Context, actor shared.ActorID, c ledger.Contents) error {
	return s.guard(ctx, func(ctx context.Context) error {
		return s.inner.Save(ctx, actor, c)
	})
}

// Delete implements ledger.Store.
func (s *Store) Delete(ctx context.Context, actor shared.ActorID) error {
	return s.guard(ctx, func(ctx context.Context) error {
		return s.inner.Delete(ctx, actor)
	})
}

// Actors lists persisted actors when the wrapped store can.
func (s *Store) Actors(ctx context.Context) ([]shared.ActorID, error) {
	lister, ok := s.inner.(interface {
		Actors(context.Context) ([]shared.ActorID, error)
	})
	if !ok {
		return nil, nil
	}
	var actors []shared.ActorID
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		actors, err = lister.Actors(ctx)
		return err
	})
	return actors, err
}

// Ping bypasses the breaker so readiness reflects the database itself.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) guard(ctx context.Context, fn func(context.Context) error) error {
	var rejected error
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && shared.IsValidation(err) {
			rejected = err
			return nil
		}
		return err
	})
	if rejected != nil {
		return rejected
	}
	return err
}
