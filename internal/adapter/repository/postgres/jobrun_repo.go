package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

const jobRunColumns = `id, job_name, status, started_at, completed_at, duration_ms,
	items_processed, items_succeeded, items_failed, details, error_message`

// jobRunRepository implements domain.JobRunRepository
type jobRunRepository struct {
	db *DB
}

// NewJobRunRepository creates a new job run repository
func NewJobRunRepository(db *DB) domain.JobRunRepository {
	return &jobRunRepository{db: db}
}

// Create inserts a new running row for the job. The partial unique index
// job_runs_one_running_idx makes this an atomic claim: a second insert while a
// running row exists fails with a unique violation, which is translated into
// domain.ErrJobAlreadyRunning.
func (r *jobRunRepository) Create(ctx context.Context, name domain.JobName) (*domain.JobRun, error) {
	query := `
		INSERT INTO job_runs (id, job_name, status, started_at)
		VALUES ($1, $2, 'running', CURRENT_TIMESTAMP)
		RETURNING ` + jobRunColumns

	row := r.db.QueryRowContext(ctx, query, uuid.New(), name)
	run, err := scanJobRun(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, domain.ErrJobAlreadyRunning
		}
		return nil, fmt.Errorf("failed to create job run: %w", err)
	}

	return run, nil
}

// Complete transitions the run to completed. Duration is computed in SQL from
// the stored start timestamp so it is consistent with the database clock.
func (r *jobRunRepository) Complete(ctx context.Context, id uuid.UUID, processed, succeeded, failed int, details map[string]any) (*domain.JobRun, error) {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE job_runs
		SET status = 'completed',
		    completed_at = CURRENT_TIMESTAMP,
		    duration_ms = (EXTRACT(EPOCH FROM (CURRENT_TIMESTAMP - started_at)) * 1000)::BIGINT,
		    items_processed = $1,
		    items_succeeded = $2,
		    items_failed = $3,
		    details = $4
		WHERE id = $5
		RETURNING ` + jobRunColumns

	row := r.db.QueryRowContext(ctx, query, processed, succeeded, failed, detailsJSON, id)
	run, err := scanJobRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to complete job run: %w", err)
	}

	return run, nil
}

// Fail transitions the run to failed
func (r *jobRunRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string, details map[string]any) (*domain.JobRun, error) {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE job_runs
		SET status = 'failed',
		    completed_at = CURRENT_TIMESTAMP,
		    duration_ms = (EXTRACT(EPOCH FROM (CURRENT_TIMESTAMP - started_at)) * 1000)::BIGINT,
		    error_message = $1,
		    details = $2
		WHERE id = $3
		RETURNING ` + jobRunColumns

	row := r.db.QueryRowContext(ctx, query, errorMessage, detailsJSON, id)
	run, err := scanJobRun(row)
	if err != nil {
		return nil, fmt.Errorf("failed to fail job run: %w", err)
	}

	return run, nil
}

// IsRunning reports whether any run of the job is in the running state
func (r *jobRunRepository) IsRunning(ctx context.Context, name domain.JobName) (bool, error) {
	query := `SELECT COUNT(*) FROM job_runs WHERE job_name = $1 AND status = 'running'`

	var count int
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count running job runs: %w", err)
	}

	return count > 0, nil
}

// GetLatest retrieves the most recent run of the job, or nil if none exists
func (r *jobRunRepository) GetLatest(ctx context.Context, name domain.JobName) (*domain.JobRun, error) {
	query := `
		SELECT ` + jobRunColumns + `
		FROM job_runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT 1`

	run, err := scanJobRun(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest job run: %w", err)
	}

	return run, nil
}

// GetHistory retrieves the last limit runs of the job, most recent first
func (r *jobRunRepository) GetHistory(ctx context.Context, name domain.JobName, limit int) ([]*domain.JobRun, error) {
	query := `
		SELECT ` + jobRunColumns + `
		FROM job_runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job run history: %w", err)
	}
	defer rows.Close()

	var runs []*domain.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job run history: %w", err)
	}

	return runs, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning
type scanner interface {
	Scan(dest ...any) error
}

func scanJobRun(s scanner) (*domain.JobRun, error) {
	var run domain.JobRun
	var completedAt sql.NullTime
	var durationMS sql.NullInt64
	var detailsJSON []byte
	var errorMessage sql.NullString

	err := s.Scan(
		&run.ID,
		&run.JobName,
		&run.Status,
		&run.StartedAt,
		&completedAt,
		&durationMS,
		&run.Processed,
		&run.Succeeded,
		&run.Failed,
		&detailsJSON,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if durationMS.Valid {
		run.DurationMS = &durationMS.Int64
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &run.Details); err != nil {
			return nil, fmt.Errorf("failed to parse job run details: %w", err)
		}
	}

	return &run, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job run details: %w", err)
	}
	return data, nil
}
