package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/skill-progression/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// FLUSH LEDGERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// LedgerFlusher is satisfied by command.FlushLedgerHandler.
type LedgerFlusher interface {
	Handle(ctx context.Context, cmd command.FlushLedgerCommand) (*command.FlushLedgerResult, error)
}

// FlushLedgersJob saves every dirty ledger. Failed ledgers stay dirty and are
// picked up by the next sweep, so the handler it wraps should not retry.
type FlushLedgersJob struct {
	flusher LedgerFlusher
	logger  *slog.Logger
}

// NewFlushLedgersJob creates a new flush job.
func NewFlushLedgersJob(flusher LedgerFlusher, logger *slog.Logger) *FlushLedgersJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushLedgersJob{flusher: flusher, logger: logger}
}

// Name returns the job name.
func (j *FlushLedgersJob) Name() string { return "flush_ledgers" }

// Description returns a human-readable description.
func (j *FlushLedgersJob) Description() string {
	return "Persists dirty ledgers to the ledger store"
}

// Run executes one sweep.
func (j *FlushLedgersJob) Run(ctx context.Context) error {
	correlationID := uuid.NewString()
	res, err := j.flusher.Handle(ctx, command.FlushLedgerCommand{CorrelationID: correlationID})
	if err != nil {
		return err
	}

	if len(res.Flushed)+len(res.Failed)+len(res.Raced) > 0 {
		j.logger.Info("flush sweep finished",
			"correlation_id", correlationID,
			"flushed", len(res.Flushed),
			"raced", len(res.Raced),
			"failed", len(res.Failed),
		)
	}
	if res.HasFailures() {
		return fmt.Errorf("flush_ledgers: %d of %d ledgers failed",
			len(res.Failed), len(res.Flushed)+len(res.Raced)+len(res.Failed))
	}
	return nil
}
