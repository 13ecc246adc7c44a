package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

// Tracker records job executions and enforces at-most-one-concurrent-run per
// job name. Terminal writes are best-effort: if recording completion fails,
// the job's in-memory result still reaches the caller and the anomaly is
// surfaced through the health check (the run row stays running).
type Tracker struct {
	Repo domain.JobRunRepository
	Log  zerolog.Logger
}

// NewTracker creates a new Tracker instance
func NewTracker(repo domain.JobRunRepository, log zerolog.Logger) *Tracker {
	return &Tracker{Repo: repo, Log: log}
}

// IsRunning reports whether a run of the job is currently active.
// It is a point-in-time check; Create is the atomic claim.
func (t *Tracker) IsRunning(ctx context.Context, name domain.JobName) (bool, error) {
	running, err := t.Repo.IsRunning(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to check running state for %s: %w", name, err)
	}
	return running, nil
}

// Create claims a new run of the job. Returns domain.ErrJobAlreadyRunning if
// another run holds the claim.
func (t *Tracker) Create(ctx context.Context, name domain.JobName) (*domain.JobRun, error) {
	run, err := t.Repo.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	t.Log.Info().
		Str("job", string(name)).
		Str("run_id", run.ID.String()).
		Msg("job run created")
	return run, nil
}

// Complete transitions the run to completed with its counters and details.
// A failed write is logged, not returned.
func (t *Tracker) Complete(ctx context.Context, id uuid.UUID, processed, succeeded, failed int, details map[string]any) {
	if _, err := t.Repo.Complete(ctx, id, processed, succeeded, failed, details); err != nil {
		t.Log.Error().
			Str("run_id", id.String()).
			Err(err).
			Msg("failed to record job completion, run row left running")
	}
}

// Fail transitions the run to failed with the error message and details.
// A failed write is logged, not returned.
func (t *Tracker) Fail(ctx context.Context, id uuid.UUID, errorMessage string, details map[string]any) {
	if _, err := t.Repo.Fail(ctx, id, errorMessage, details); err != nil {
		t.Log.Error().
			Str("run_id", id.String()).
			Err(err).
			Msg("failed to record job failure, run row left running")
	}
}

// GetLatest retrieves the most recent run of the job, or nil if none
func (t *Tracker) GetLatest(ctx context.Context, name domain.JobName) (*domain.JobRun, error) {
	run, err := t.Repo.GetLatest(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run for %s: %w", name, err)
	}
	return run, nil
}

// GetHistory retrieves the last limit runs of the job, most recent first
func (t *Tracker) GetHistory(ctx context.Context, name domain.JobName, limit int) ([]*domain.JobRun, error) {
	runs, err := t.Repo.GetHistory(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", name, err)
	}
	return runs, nil
}
