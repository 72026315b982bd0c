// Package jobs contains the periodic sweeps run by the worker scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/skill-progression/internal/application/command"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE ACTORS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ActorLister lists the actors whose ledgers are loaded.
type ActorLister interface {
	Actors() []shared.ActorID
}

// ProgressionRefresher is satisfied by command.RefreshProgressionHandler.
type ProgressionRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshProgressionCommand) (*command.RefreshProgressionResult, error)
}

// AnalyzeActorsConfig contains configuration for the analysis sweep.
type AnalyzeActorsConfig struct {
	// MaxConcurrency bounds parallel refreshes.
	MaxConcurrency int

	// Timeout bounds the whole sweep. Zero means no timeout.
	Timeout time.Duration
}

// DefaultAnalyzeActorsConfig returns sensible defaults.
func DefaultAnalyzeActorsConfig() AnalyzeActorsConfig {
	return AnalyzeActorsConfig{
		MaxConcurrency: 4,
		Timeout:        2 * time.Minute,
	}
}

// AnalyzeStats summarizes one sweep.
type AnalyzeStats struct {
	Actors    int
	Refreshed int
	Projected int
	// Deferred counts actors whose projection was skipped by an open breaker.
	Deferred int
	Failed   int
	Duration time.Duration
}

// AnalyzeActorsJob re-analyzes every loaded actor and refreshes the projection.
type AnalyzeActorsJob struct {
	actors    ActorLister
	refresher ProgressionRefresher
	logger    *slog.Logger
	config    AnalyzeActorsConfig

	mu        sync.Mutex
	lastStats AnalyzeStats
}

// NewAnalyzeActorsJob creates a new analysis job.
func NewAnalyzeActorsJob(actors ActorLister, refresher ProgressionRefresher, logger *slog.Logger, config AnalyzeActorsConfig) *AnalyzeActorsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &AnalyzeActorsJob{actors: actors, refresher: refresher, logger: logger, config: config}
}

// Name returns the job name.
func (j *AnalyzeActorsJob) Name() string { return "analyze_actors" }

// Description returns a human-readable description.
func (j *AnalyzeActorsJob) Description() string {
	return "Recomputes specialization metrics and tree weights of loaded actors"
}

// LastStats returns the stats of the most recent run.
func (j *AnalyzeActorsJob) LastStats() AnalyzeStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastStats
}

// Run executes one sweep. One actor failing does not stop the others; the
// returned error joins every failure.
func (j *AnalyzeActorsJob) Run(ctx context.Context) error {
	start := time.Now()
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	actors := j.actors.Actors()
	correlationID := uuid.NewString()

	var (
		mu    sync.Mutex
		stats = AnalyzeStats{Actors: len(actors)}
		errs  []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.MaxConcurrency)
	for _, actor := range actors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := j.refresher.Handle(gctx, command.RefreshProgressionCommand{
				ActorID:       actor.String(),
				CorrelationID: correlationID,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Refreshed++
				if res.Projected {
					stats.Projected++
				}
			case res != nil && circuitbreaker.IsRejected(err):
				stats.Refreshed++
				stats.Deferred++
			default:
				stats.Failed++
				errs = append(errs, fmt.Errorf("%s: %w", actor, err))
			}
			// Per-actor failures never cancel the group.
			return nil
		})
	}
	groupErr := g.Wait()

	stats.Duration = time.Since(start)
	j.mu.Lock()
	j.lastStats = stats
	j.mu.Unlock()

	j.logger.Info("analysis sweep finished",
		"correlation_id", correlationID,
		"actors", stats.Actors,
		"refreshed", stats.Refreshed,
		"projected", stats.Projected,
		"deferred", stats.Deferred,
		"failed", stats.Failed,
		"duration", stats.Duration.String(),
	)

	if groupErr != nil {
		errs = append(errs, groupErr)
	}
	return errors.Join(errs...)
}
