package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELOAD TAXONOMY COMMAND
// Reads the tree catalog from its source and swaps it into the registry.
// A catalog that fails to build leaves the registry untouched.
// ══════════════════════════════════════════════════════════════════════════════

// ReloadTaxonomyCommand triggers a taxonomy reload.
type ReloadTaxonomyCommand struct {
	// Force reloads even when the catalog digest is unchanged.
	Force bool

	CorrelationID string
}

// ReloadTaxonomyResult contains the result of a reload.
type ReloadTaxonomyResult struct {
	Digest string
	Trees  []string
	Nodes  int

	// Skipped is true when the digest matched the loaded catalog.
	Skipped bool

	Events []shared.Event
}

// ReloadTaxonomyHandler handles the ReloadTaxonomyCommand.
type ReloadTaxonomyHandler struct {
	source         skilltree.Source
	registry       *skilltree.Registry
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	mu     sync.Mutex
	digest string
}

// NewReloadTaxonomyHandler creates a new ReloadTaxonomyHandler.
func NewReloadTaxonomyHandler(
	source skilltree.Source,
	registry *skilltree.Registry,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *ReloadTaxonomyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadTaxonomyHandler{
		source:         source,
		registry:       registry,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Digest returns the digest of the catalog currently loaded.
func (h *ReloadTaxonomyHandler) Digest() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.digest
}

// Handle executes the reload command.
func (h *ReloadTaxonomyHandler) Handle(ctx context.Context, cmd ReloadTaxonomyCommand) (*ReloadTaxonomyResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	catalog, err := h.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload_taxonomy: failed to load catalog: %w", err)
	}

	result := &ReloadTaxonomyResult{
		Digest: catalog.Digest,
		Trees:  catalog.Names(),
		Nodes:  catalog.CountNodes(),
	}
	if !cmd.Force && catalog.Digest != "" && catalog.Digest == h.digest {
		result.Skipped = true
		return result, nil
	}

	trees, err := catalog.Build()
	if err != nil {
		return nil, fmt.Errorf("reload_taxonomy: invalid catalog: %w", err)
	}
	if err := h.registry.Reload(trees...); err != nil {
		return nil, fmt.Errorf("reload_taxonomy: %w", err)
	}
	h.digest = catalog.Digest

	h.logger.Info("taxonomy reloaded",
		"digest", catalog.Digest,
		"trees", len(trees),
		"nodes", result.Nodes,
	)

	event := shared.NewTaxonomyReloadedEvent(catalog.Digest, result.Trees, result.Nodes)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	shared.PublishSafe(h.eventPublisher, event)
	result.Events = []shared.Event{event}

	return result, nil
}
