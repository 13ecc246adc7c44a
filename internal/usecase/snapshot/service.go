package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
	"github.com/pcervantes/patrimonio-backend/internal/observability"
)

// Service computes and persists the daily point-in-time valuations:
// one ticker snapshot per valuable holding, then one account snapshot per
// account aggregating the rows just written.
type Service struct {
	HoldingRepo         domain.HoldingRepository
	PriceCacheRepo      domain.PriceCacheRepository
	TickerSnapshotRepo  domain.TickerSnapshotRepository
	AccountSnapshotRepo domain.AccountSnapshotRepository
	Metrics             *observability.Metrics
	Log                 zerolog.Logger
}

// NewService creates a new snapshot Service instance
func NewService(
	holdingRepo domain.HoldingRepository,
	priceCacheRepo domain.PriceCacheRepository,
	tickerSnapshotRepo domain.TickerSnapshotRepository,
	accountSnapshotRepo domain.AccountSnapshotRepository,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		HoldingRepo:         holdingRepo,
		PriceCacheRepo:      priceCacheRepo,
		TickerSnapshotRepo:  tickerSnapshotRepo,
		AccountSnapshotRepo: accountSnapshotRepo,
		Metrics:             metrics,
		Log:                 log,
	}
}

// SkipReasonAlreadyExists is reported when the idempotence guard fires
const SkipReasonAlreadyExists = "snapshots_already_exist"

// PassResult summarizes the per-holding snapshot pass
type PassResult struct {
	Processed int `json:"processed"` // total holdings examined
	Succeeded int `json:"succeeded"` // holdings that resolved to a value
	Failed    int `json:"failed"`    // unvaluable holdings, skipped
	Created   int `json:"created"`   // rows actually written
}

// AccountPassResult summarizes the per-account aggregation pass
type AccountPassResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
}

// Result is the outcome of one CreateDailySnapshots execution
type Result struct {
	Skipped          bool
	Reason           string
	TickerSnapshots  PassResult
	AccountSnapshots AccountPassResult
}

// Created returns the total number of snapshot rows written
func (r *Result) Created() int {
	return r.TickerSnapshots.Created + r.AccountSnapshots.Created
}

// CreateDailySnapshots generates the snapshot set for a calendar date.
// If any ticker snapshot already exists for the date the whole run is a
// no-op returning Skipped, so re-triggering the same day never duplicates
// rows.
func (s *Service) CreateDailySnapshots(ctx context.Context, date string) (*Result, error) {
	exists, err := s.TickerSnapshotRepo.ExistsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing snapshots: %w", err)
	}
	if exists {
		s.Log.Info().Str("date", date).Msg("snapshots already exist, skipping")
		return &Result{Skipped: true, Reason: SkipReasonAlreadyExists}, nil
	}

	tickerResult, err := s.createTickerSnapshots(ctx, date)
	if err != nil {
		return nil, err
	}

	accountResult, err := s.createAccountSnapshots(ctx, date)
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("date", date).
		Int("ticker_rows", tickerResult.Created).
		Int("account_rows", accountResult.Created).
		Msg("daily snapshots created")

	return &Result{
		TickerSnapshots:  *tickerResult,
		AccountSnapshots: *accountResult,
	}, nil
}

// createTickerSnapshots values every holding and bulk-inserts one row per
// valuable holding. Manually valued holdings get a row with a NULL ticker so
// they still participate in the account aggregation.
func (s *Service) createTickerSnapshots(ctx context.Context, date string) (*PassResult, error) {
	holdings, err := s.HoldingRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	prices, err := s.PriceCacheRepo.GetLatestPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached prices: %w", err)
	}

	priceMap := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		priceMap[domain.NormalizeTicker(p.Ticker)] = p.PriceUSD
	}

	var snapshots []*domain.TickerSnapshot
	succeeded := 0
	failed := 0

	for _, holding := range holdings {
		valuation := holding.Valuate(priceMap)
		if valuation.Kind == domain.ValuationUnvaluable {
			s.Log.Warn().
				Str("holding", holding.Name).
				Str("holding_id", holding.ID.String()).
				Msg("holding has no price and no manual value, skipping")
			failed++
			continue
		}

		succeeded++
		snapshots = append(snapshots, &domain.TickerSnapshot{
			ID:           uuid.New(),
			SnapshotDate: date,
			AccountID:    holding.AccountID,
			Ticker:       holding.Ticker,
			Name:         holding.Name,
			Value:        valuation.Value,
		})
	}

	created, err := s.TickerSnapshotRepo.BulkCreate(ctx, snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ticker snapshots: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.SnapshotRowsCreated.WithLabelValues("ticker").Add(float64(created))
	}

	return &PassResult{
		Processed: len(holdings),
		Succeeded: succeeded,
		Failed:    failed,
		Created:   created,
	}, nil
}

// createAccountSnapshots reads back the rows written for the date, sums them
// per account, and bulk-inserts one total row per contributing account.
// Accounts with no rows for the date produce nothing, not a zero-value row.
func (s *Service) createAccountSnapshots(ctx context.Context, date string) (*AccountPassResult, error) {
	tickerSnapshots, err := s.TickerSnapshotRepo.FindByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticker snapshots: %w", err)
	}

	totals := make(map[uuid.UUID]decimal.Decimal)
	for _, snap := range tickerSnapshots {
		totals[snap.AccountID] = totals[snap.AccountID].Add(snap.Value)
	}

	accountIDs := make([]uuid.UUID, 0, len(totals))
	for accountID := range totals {
		accountIDs = append(accountIDs, accountID)
	}
	sort.Slice(accountIDs, func(i, j int) bool {
		return accountIDs[i].String() < accountIDs[j].String()
	})

	snapshots := make([]*domain.AccountSnapshot, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		snapshots = append(snapshots, &domain.AccountSnapshot{
			ID:           uuid.New(),
			SnapshotDate: date,
			AccountID:    accountID,
			TotalValue:   totals[accountID],
		})
	}

	created, err := s.AccountSnapshotRepo.BulkCreate(ctx, snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account snapshots: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.SnapshotRowsCreated.WithLabelValues("account").Add(float64(created))
	}

	return &AccountPassResult{
		Processed: len(snapshots),
		Created:   created,
	}, nil
}
