package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

// holdingRepository implements domain.HoldingRepository
type holdingRepository struct {
	db *DB
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *DB) domain.HoldingRepository {
	return &holdingRepository{db: db}
}

// FindAll retrieves every holding with the owning account's name joined in.
// Tickers are upper-cased on the read side so callers never see mixed case.
func (r *holdingRepository) FindAll(ctx context.Context) ([]*domain.Holding, error) {
	query := `
		SELECT h.id, h.account_id, a.name, UPPER(h.ticker), h.name,
		       h.quantity, h.manual_value, h.category, COALESCE(h.notes, ''), h.updated_at
		FROM holdings h
		JOIN accounts a ON h.account_id = a.id
		ORDER BY h.updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*domain.Holding
	for rows.Next() {
		var h domain.Holding
		var ticker sql.NullString
		var quantityStr sql.NullString
		var manualValueStr sql.NullString

		err := rows.Scan(
			&h.ID,
			&h.AccountID,
			&h.AccountName,
			&ticker,
			&h.Name,
			&quantityStr,
			&manualValueStr,
			&h.Category,
			&h.Notes,
			&h.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}

		if ticker.Valid && ticker.String != "" {
			h.Ticker = &ticker.String
		}
		if quantityStr.Valid {
			quantity, err := decimal.NewFromString(quantityStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse holding quantity: %w", err)
			}
			h.Quantity = quantity
		}
		if manualValueStr.Valid {
			manualValue, err := decimal.NewFromString(manualValueStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse holding manual_value: %w", err)
			}
			h.ManualValue = &manualValue
		}

		holdings = append(holdings, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}

	return holdings, nil
}
