package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

// tickerSnapshotRepository implements domain.TickerSnapshotRepository
type tickerSnapshotRepository struct {
	db *DB
}

// NewTickerSnapshotRepository creates a new ticker snapshot repository
func NewTickerSnapshotRepository(db *DB) domain.TickerSnapshotRepository {
	return &tickerSnapshotRepository{db: db}
}

// BulkCreate inserts all rows in a single statement. Natural-key conflicts
// (snapshot_date, account_id, ticker, name) are ignored so a replayed batch
// never duplicates rows.
func (r *tickerSnapshotRepository) BulkCreate(ctx context.Context, snapshots []*domain.TickerSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	var placeholders []string
	var args []any
	for i, snap := range snapshots {
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, snap.ID, snap.SnapshotDate, snap.AccountID, snap.Ticker, snap.Name, snap.Value.String())
	}

	query := fmt.Sprintf(`
		INSERT INTO ticker_snapshots (id, snapshot_date, account_id, ticker, name, value)
		VALUES %s
		ON CONFLICT DO NOTHING
	`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert ticker snapshots: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted row count: %w", err)
	}

	return int(inserted), nil
}

// FindByDate retrieves all ticker snapshots for a calendar date
func (r *tickerSnapshotRepository) FindByDate(ctx context.Context, date string) ([]*domain.TickerSnapshot, error) {
	query := `
		SELECT id, snapshot_date::TEXT, account_id, ticker, name, value
		FROM ticker_snapshots
		WHERE snapshot_date = $1
		ORDER BY account_id, ticker
	`

	rows, err := r.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticker snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.TickerSnapshot
	for rows.Next() {
		var snap domain.TickerSnapshot
		var ticker sql.NullString
		var valueStr string

		if err := rows.Scan(&snap.ID, &snap.SnapshotDate, &snap.AccountID, &ticker, &snap.Name, &valueStr); err != nil {
			return nil, fmt.Errorf("failed to scan ticker snapshot: %w", err)
		}
		if ticker.Valid {
			snap.Ticker = &ticker.String
		}
		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse snapshot value: %w", err)
		}
		snap.Value = value

		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ticker snapshots: %w", err)
	}

	return snapshots, nil
}

// ExistsForDate reports whether any ticker snapshot exists for a calendar date
func (r *tickerSnapshotRepository) ExistsForDate(ctx context.Context, date string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ticker_snapshots WHERE snapshot_date = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ticker snapshot existence: %w", err)
	}

	return exists, nil
}

// accountSnapshotRepository implements domain.AccountSnapshotRepository
type accountSnapshotRepository struct {
	db *DB
}

// NewAccountSnapshotRepository creates a new account snapshot repository
func NewAccountSnapshotRepository(db *DB) domain.AccountSnapshotRepository {
	return &accountSnapshotRepository{db: db}
}

// BulkCreate inserts all rows in a single statement, ignoring conflicts on
// the (snapshot_date, account_id) natural key.
func (r *accountSnapshotRepository) BulkCreate(ctx context.Context, snapshots []*domain.AccountSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	var placeholders []string
	var args []any
	for i, snap := range snapshots {
		base := i * 4
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4))
		args = append(args, snap.ID, snap.SnapshotDate, snap.AccountID, snap.TotalValue.String())
	}

	query := fmt.Sprintf(`
		INSERT INTO account_snapshots (id, snapshot_date, account_id, total_value)
		VALUES %s
		ON CONFLICT DO NOTHING
	`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert account snapshots: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted row count: %w", err)
	}

	return int(inserted), nil
}

// FindByDate retrieves all account snapshots for a calendar date
func (r *accountSnapshotRepository) FindByDate(ctx context.Context, date string) ([]*domain.AccountSnapshot, error) {
	query := `
		SELECT id, snapshot_date::TEXT, account_id, total_value
		FROM account_snapshots
		WHERE snapshot_date = $1
		ORDER BY account_id
	`

	rows, err := r.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query account snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.AccountSnapshot
	for rows.Next() {
		var snap domain.AccountSnapshot
		var totalStr string

		if err := rows.Scan(&snap.ID, &snap.SnapshotDate, &snap.AccountID, &totalStr); err != nil {
			return nil, fmt.Errorf("failed to scan account snapshot: %w", err)
		}
		total, err := decimal.NewFromString(totalStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse snapshot total_value: %w", err)
		}
		snap.TotalValue = total

		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account snapshots: %w", err)
	}

	return snapshots, nil
}

// ExistsForDate reports whether any account snapshot exists for a calendar date
func (r *accountSnapshotRepository) ExistsForDate(ctx context.Context, date string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM account_snapshots WHERE snapshot_date = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account snapshot existence: %w", err)
	}

	return exists, nil
}
