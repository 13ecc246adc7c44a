package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

// priceCacheRepository implements domain.PriceCacheRepository
type priceCacheRepository struct {
	db *DB
}

// NewPriceCacheRepository creates a new price cache repository
func NewPriceCacheRepository(db *DB) domain.PriceCacheRepository {
	return &priceCacheRepository{db: db}
}

// Upsert inserts or replaces the cached price for a ticker.
// ON CONFLICT keeps concurrent writers to distinct tickers independent; the
// last writer for the same ticker wins.
func (r *priceCacheRepository) Upsert(ctx context.Context, ticker string, price decimal.Decimal, source string) (*domain.PriceCacheEntry, error) {
	query := `
		INSERT INTO price_cache (ticker, price_usd, source, fetched_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (ticker) DO UPDATE
		SET price_usd = $2, source = $3, fetched_at = CURRENT_TIMESTAMP
		RETURNING ticker, price_usd, source, fetched_at
	`

	entry, err := scanPriceCacheEntry(r.db.QueryRowContext(ctx, query,
		domain.NormalizeTicker(ticker), price.String(), source))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert price cache entry: %w", err)
	}

	return entry, nil
}

// FindByTicker retrieves the cached price for one ticker, or nil if none
func (r *priceCacheRepository) FindByTicker(ctx context.Context, ticker string) (*domain.PriceCacheEntry, error) {
	query := `
		SELECT ticker, price_usd, source, fetched_at
		FROM price_cache
		WHERE ticker = $1
	`

	entry, err := scanPriceCacheEntry(r.db.QueryRowContext(ctx, query, domain.NormalizeTicker(ticker)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find price cache entry: %w", err)
	}

	return entry, nil
}

// GetLatestPrices retrieves every cached price, most recently fetched first
func (r *priceCacheRepository) GetLatestPrices(ctx context.Context) ([]*domain.PriceCacheEntry, error) {
	query := `
		SELECT ticker, price_usd, source, fetched_at
		FROM price_cache
		ORDER BY fetched_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query price cache: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PriceCacheEntry
	for rows.Next() {
		entry, err := scanPriceCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price cache entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price cache: %w", err)
	}

	return entries, nil
}

// Delete removes the cached price for a ticker
func (r *priceCacheRepository) Delete(ctx context.Context, ticker string) error {
	query := `DELETE FROM price_cache WHERE ticker = $1`

	if _, err := r.db.ExecContext(ctx, query, domain.NormalizeTicker(ticker)); err != nil {
		return fmt.Errorf("failed to delete price cache entry: %w", err)
	}

	return nil
}

func scanPriceCacheEntry(s scanner) (*domain.PriceCacheEntry, error) {
	var entry domain.PriceCacheEntry
	var priceStr string

	if err := s.Scan(&entry.Ticker, &priceStr, &entry.Source, &entry.FetchedAt); err != nil {
		return nil, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price_usd: %w", err)
	}
	entry.PriceUSD = price

	return &entry, nil
}
