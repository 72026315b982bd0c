package jobs

import (
	"context"
	"log/slog"

	"github.com/alem-hub/skill-progression/internal/application/command"
)

// TaxonomyReloader is satisfied by command.ReloadTaxonomyHandler.
type TaxonomyReloader interface {
	Handle(ctx context.Context, cmd command.ReloadTaxonomyCommand) (*command.ReloadTaxonomyResult, error)
}

// ReloadTaxonomyJob re-reads the taxonomy files. Unchanged files are skipped
// by digest, so frequent runs are cheap. It backs up the file watcher on
// filesystems without change notifications.
type ReloadTaxonomyJob struct {
	reloader TaxonomyReloader
	logger   *slog.Logger
}

// NewReloadTaxonomyJob creates a new reload job.
func NewReloadTaxonomyJob(reloader TaxonomyReloader, logger *slog.Logger) *ReloadTaxonomyJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadTaxonomyJob{reloader: reloader, logger: logger}
}

// Name returns the job name.
func (j *ReloadTaxonomyJob) Name() string { return "reload_taxonomy" }

// Description returns a human-readable description.
func (j *ReloadTaxonomyJob) Description() string {
	return "Reloads skill trees when the taxonomy files changed"
}

// Run executes the reload.
func (j *ReloadTaxonomyJob) Run(ctx context.Context) error {
	res, err := j.reloader.Handle(ctx, command.ReloadTaxonomyCommand{})
	if err != nil {
		return err
	}
	if !res.Skipped {
		j.logger.Info("taxonomy reloaded by schedule", "digest", res.Digest, "trees", res.Trees)
	}
	return nil
}
