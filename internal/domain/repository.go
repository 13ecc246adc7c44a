package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HoldingRepository defines the read-only access to holdings this core needs
type HoldingRepository interface {
	// FindAll retrieves every holding, most recently updated first,
	// with the owning account's name joined in
	FindAll(ctx context.Context) ([]*Holding, error)
}

// JobRunRepository defines the interface for job run persistence operations
type JobRunRepository interface {
	// Create inserts a new running row for the job and returns it.
	// Returns ErrJobAlreadyRunning if a running row for the same job name
	// already exists.
	Create(ctx context.Context, name JobName) (*JobRun, error)

	// Complete transitions the run to completed, stamping the end time,
	// elapsed duration, counters and details
	Complete(ctx context.Context, id uuid.UUID, processed, succeeded, failed int, details map[string]any) (*JobRun, error)

	// Fail transitions the run to failed, stamping the end time, duration,
	// error message and details
	Fail(ctx context.Context, id uuid.UUID, errorMessage string, details map[string]any) (*JobRun, error)

	// IsRunning reports whether any run of the job is currently in the
	// running state
	IsRunning(ctx context.Context, name JobName) (bool, error)

	// GetLatest retrieves the most recent run of the job, or nil if the job
	// has never run
	GetLatest(ctx context.Context, name JobName) (*JobRun, error)

	// GetHistory retrieves the last limit runs of the job, most recent first
	GetHistory(ctx context.Context, name JobName, limit int) ([]*JobRun, error)
}

// PriceCacheRepository defines the interface for the latest-price-per-ticker table
type PriceCacheRepository interface {
	// Upsert inserts or replaces the cached price for a ticker.
	// Safe under concurrent writes to distinct tickers.
	Upsert(ctx context.Context, ticker string, price decimal.Decimal, source string) (*PriceCacheEntry, error)

	// FindByTicker retrieves the cached price for one ticker, or nil if none
	FindByTicker(ctx context.Context, ticker string) (*PriceCacheEntry, error)

	// GetLatestPrices retrieves every cached price, most recently fetched first
	GetLatestPrices(ctx context.Context) ([]*PriceCacheEntry, error)

	// Delete removes the cached price for a ticker (maintenance operation)
	Delete(ctx context.Context, ticker string) error
}

// TickerSnapshotRepository defines the interface for per-holding snapshot rows
type TickerSnapshotRepository interface {
	// BulkCreate inserts all rows in a single statement, ignoring natural-key
	// conflicts, and returns the number of rows actually inserted.
	// Zero-length input is a no-op returning 0.
	BulkCreate(ctx context.Context, snapshots []*TickerSnapshot) (int, error)

	// FindByDate retrieves all rows for a calendar date
	FindByDate(ctx context.Context, date string) ([]*TickerSnapshot, error)

	// ExistsForDate reports whether any row exists for a calendar date
	ExistsForDate(ctx context.Context, date string) (bool, error)
}

// AccountSnapshotRepository defines the interface for per-account snapshot rows
type AccountSnapshotRepository interface {
	// BulkCreate inserts all rows in a single statement, ignoring natural-key
	// conflicts, and returns the number of rows actually inserted.
	// Zero-length input is a no-op returning 0.
	BulkCreate(ctx context.Context, snapshots []*AccountSnapshot) (int, error)

	// FindByDate retrieves all rows for a calendar date
	FindByDate(ctx context.Context, date string) ([]*AccountSnapshot, error)

	// ExistsForDate reports whether any row exists for a calendar date
	ExistsForDate(ctx context.Context, date string) (bool, error)
}
