package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// FLUSH LEDGER COMMAND
// Persists dirty ledgers. A ledger is marked clean only if it did not change
// while its snapshot was being written; a failed save keeps it dirty.
// ══════════════════════════════════════════════════════════════════════════════

// FlushLedgerCommand selects which ledgers to flush.
type FlushLedgerCommand struct {
	// ActorID limits the flush to one actor. Empty flushes every dirty ledger.
	ActorID string

	CorrelationID string
}

// FlushLedgerResult contains the result of a flush.
type FlushLedgerResult struct {
	Flushed []shared.ActorID
	Failed  map[shared.ActorID]error

	// Raced lists actors whose ledger changed during the save and stays dirty.
	Raced []shared.ActorID

	Events []shared.Event
}

// HasFailures reports whether any save failed.
func (r *FlushLedgerResult) HasFailures() bool {
	return len(r.Failed) > 0
}

// FlushLedgerHandlerConfig contains configuration for the handler.
type FlushLedgerHandlerConfig struct {
	// Retrier wraps each save. Nil disables retries.
	Retrier *retry.Retrier
}

// DefaultFlushLedgerHandlerConfig returns default configuration.
func DefaultFlushLedgerHandlerConfig() FlushLedgerHandlerConfig {
	return FlushLedgerHandlerConfig{
		Retrier: retry.StorageRetrier(),
	}
}

// FlushLedgerHandler handles the FlushLedgerCommand.
type FlushLedgerHandler struct {
	book           *ledger.Book
	store          ledger.Store
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
	config         FlushLedgerHandlerConfig
}

// NewFlushLedgerHandler creates a new FlushLedgerHandler.
func NewFlushLedgerHandler(
	book *ledger.Book,
	store ledger.Store,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config FlushLedgerHandlerConfig,
) *FlushLedgerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushLedgerHandler{
		book:           book,
		store:          store,
		eventPublisher: eventPublisher,
		logger:         logger,
		config:         config,
	}
}

// Handle executes the flush command. Individual save failures are reported in
// the result; the returned error is reserved for invalid commands.
func (h *FlushLedgerHandler) Handle(ctx context.Context, cmd FlushLedgerCommand) (*FlushLedgerResult, error) {
	if h.store == nil {
		return nil, fmt.Errorf("flush_ledger: %w",
			shared.NewDomainError("ledger", "Flush", shared.ErrServiceUnavailable, "no ledger store configured"))
	}

	var actors []shared.ActorID
	if cmd.ActorID != "" {
		actor, err := shared.NewActorID(cmd.ActorID)
		if err != nil {
			return nil, fmt.Errorf("flush_ledger: %w", err)
		}
		actors = []shared.ActorID{actor}
	} else {
		actors = h.book.Dirty()
	}

	result := &FlushLedgerResult{Failed: make(map[shared.ActorID]error)}
	for _, actor := range actors {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("flush_ledger: %w", err)
		}
		l, ok := h.book.Get(actor)
		if !ok || !l.IsDirty() {
			continue
		}
		h.flushOne(ctx, l, cmd.CorrelationID, result)
	}
	return result, nil
}

func (h *FlushLedgerHandler) flushOne(ctx context.Context, l *ledger.Ledger, correlationID string, result *FlushLedgerResult) {
	actor := l.Actor()
	snap := l.Snapshot()

	save := func(ctx context.Context) error {
		return h.store.Save(ctx, actor, snap.Contents())
	}
	var err error
	if h.config.Retrier != nil {
		err = h.config.Retrier.Do(ctx, save)
	} else {
		err = save(ctx)
	}

	var event shared.Event
	if err != nil {
		h.logger.Error("ledger flush failed", "actor_id", actor.String(), "error", err)
		result.Failed[actor] = err
		e := shared.NewLedgerFlushFailedEvent(actor, err)
		if correlationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(correlationID)
		}
		event = e
	} else {
		if l.MarkCleanIfUnchanged(snap.Version()) {
			result.Flushed = append(result.Flushed, actor)
		} else {
			result.Raced = append(result.Raced, actor)
		}
		e := shared.NewLedgerFlushedEvent(actor, snap.Version(), snap.Len())
		if correlationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(correlationID)
		}
		event = e
	}

	shared.PublishSafe(h.eventPublisher, event)
	result.Events = append(result.Events, event)
}
