package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobName identifies one of the scheduled background jobs
type JobName string

const (
	JobPriceUpdate      JobName = "price-update"
	JobSnapshotCreation JobName = "snapshot-creation"
)

// Valid reports whether the name refers to a known job
func (n JobName) Valid() bool {
	return n == JobPriceUpdate || n == JobSnapshotCreation
}

// JobStatus represents the lifecycle state of a job run
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobAlreadyRunning is returned by JobRunRepository.Create when a running
// row for the same job name already exists (enforced by a partial unique
// index, so the claim is atomic rather than check-then-act).
var ErrJobAlreadyRunning = errors.New("job already running")

// JobRun represents one execution record of a named job.
// Rows are created in the running state, transitioned exactly once to
// completed or failed, and never deleted (audit trail).
type JobRun struct {
	ID           uuid.UUID
	JobName      JobName
	Status       JobStatus
	StartedAt    time.Time
	CompletedAt  *time.Time // NULL while running
	DurationMS   *int64     // NULL while running
	Processed    int
	Succeeded    int
	Failed       int
	Details      map[string]any // opaque diagnostic payload, stored as JSONB
	ErrorMessage *string
}
