package snapshot

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
	"github.com/pcervantes/patrimonio-backend/internal/observability"
)

// MockHoldingRepository is a mock implementation of domain.HoldingRepository
type MockHoldingRepository struct {
	mock.Mock
}

func (m *MockHoldingRepository) FindAll(ctx context.Context) ([]*domain.Holding, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Holding), args.Error(1)
}

// MockPriceCacheRepository is a mock implementation of domain.PriceCacheRepository
type MockPriceCacheRepository struct {
	mock.Mock
}

func (m *MockPriceCacheRepository) Upsert(ctx context.Context, ticker string, price decimal.Decimal, source string) (*domain.PriceCacheEntry, error) {
	args := m.Called(ctx, ticker, price, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceCacheEntry), args.Error(1)
}

func (m *MockPriceCacheRepository) FindByTicker(ctx context.Context, ticker string) (*domain.PriceCacheEntry, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceCacheEntry), args.Error(1)
}

func (m *MockPriceCacheRepository) GetLatestPrices(ctx context.Context) ([]*domain.PriceCacheEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PriceCacheEntry), args.Error(1)
}

func (m *MockPriceCacheRepository) Delete(ctx context.Context, ticker string) error {
	args := m.Called(ctx, ticker)
	return args.Error(0)
}

// MockTickerSnapshotRepository is a mock implementation of domain.TickerSnapshotRepository
type MockTickerSnapshotRepository struct {
	mock.Mock
}

func (m *MockTickerSnapshotRepository) BulkCreate(ctx context.Context, snapshots []*domain.TickerSnapshot) (int, error) {
	args := m.Called(ctx, snapshots)
	return args.Int(0), args.Error(1)
}

func (m *MockTickerSnapshotRepository) FindByDate(ctx context.Context, date string) ([]*domain.TickerSnapshot, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TickerSnapshot), args.Error(1)
}

func (m *MockTickerSnapshotRepository) ExistsForDate(ctx context.Context, date string) (bool, error) {
	args := m.Called(ctx, date)
	return args.Bool(0), args.Error(1)
}

// MockAccountSnapshotRepository is a mock implementation of domain.AccountSnapshotRepository
type MockAccountSnapshotRepository struct {
	mock.Mock
}

func (m *MockAccountSnapshotRepository) BulkCreate(ctx context.Context, snapshots []*domain.AccountSnapshot) (int, error) {
	args := m.Called(ctx, snapshots)
	return args.Int(0), args.Error(1)
}

func (m *MockAccountSnapshotRepository) FindByDate(ctx context.Context, date string) ([]*domain.AccountSnapshot, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AccountSnapshot), args.Error(1)
}

func (m *MockAccountSnapshotRepository) ExistsForDate(ctx context.Context, date string) (bool, error) {
	args := m.Called(ctx, date)
	return args.Bool(0), args.Error(1)
}

type serviceMocks struct {
	holdings *MockHoldingRepository
	prices   *MockPriceCacheRepository
	tickers  *MockTickerSnapshotRepository
	accounts *MockAccountSnapshotRepository
}

func newTestService() (*Service, *serviceMocks) {
	m := &serviceMocks{
		holdings: new(MockHoldingRepository),
		prices:   new(MockPriceCacheRepository),
		tickers:  new(MockTickerSnapshotRepository),
		accounts: new(MockAccountSnapshotRepository),
	}
	svc := NewService(m.holdings, m.prices, m.tickers, m.accounts, nil, observability.NewLogger("test"))
	return svc, m
}

func strPtr(s string) *string { return &s }

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

const testDate = "2026-08-30"

func TestCreateDailySnapshots_SkipsWhenSnapshotsExist(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService()

	m.tickers.On("ExistsForDate", ctx, testDate).Return(true, nil)

	result, err := svc.CreateDailySnapshots(ctx, testDate)

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, SkipReasonAlreadyExists, result.Reason)

	// The guard must prevent any write
	m.tickers.AssertNotCalled(t, "BulkCreate", mock.Anything, mock.Anything)
	m.accounts.AssertNotCalled(t, "BulkCreate", mock.Anything, mock.Anything)
	m.holdings.AssertNotCalled(t, "FindAll", mock.Anything)
}

func TestCreateDailySnapshots_ValuesHoldingsAndAggregates(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService()

	accountA := uuid.New()
	accountB := uuid.New()

	holdings := []*domain.Holding{
		{ID: uuid.New(), AccountID: accountA, Ticker: strPtr("BTC"), Name: "Bitcoin", Quantity: decimal.NewFromInt(2), Category: domain.CategoryCrypto},
		{ID: uuid.New(), AccountID: accountA, Name: "Apartment", ManualValue: decPtr(decimal.NewFromInt(200000)), Category: domain.CategoryRealEstate},
		{ID: uuid.New(), AccountID: accountB, Name: "Mortgage", ManualValue: decPtr(decimal.NewFromInt(-500)), Category: domain.CategoryDebt},
		{ID: uuid.New(), AccountID: accountB, Ticker: strPtr("FAKE"), Name: "Unpriced", Quantity: decimal.NewFromInt(1), Category: domain.CategoryCrypto},
	}

	prices := []*domain.PriceCacheEntry{
		{Ticker: "BTC", PriceUSD: decimal.NewFromInt(50000), Source: "coinbase"},
	}

	m.tickers.On("ExistsForDate", ctx, testDate).Return(false, nil)
	m.holdings.On("FindAll", ctx).Return(holdings, nil)
	m.prices.On("GetLatestPrices", ctx).Return(prices, nil)

	var insertedTickerRows []*domain.TickerSnapshot
	m.tickers.On("BulkCreate", ctx, mock.MatchedBy(func(rows []*domain.TickerSnapshot) bool {
		insertedTickerRows = rows
		return len(rows) == 3
	})).Return(3, nil)

	// The account pass reads back what was written
	m.tickers.On("FindByDate", ctx, testDate).Return([]*domain.TickerSnapshot{
		{SnapshotDate: testDate, AccountID: accountA, Ticker: strPtr("BTC"), Name: "Bitcoin", Value: decimal.NewFromInt(100000)},
		{SnapshotDate: testDate, AccountID: accountA, Name: "Apartment", Value: decimal.NewFromInt(200000)},
		{SnapshotDate: testDate, AccountID: accountB, Name: "Mortgage", Value: decimal.NewFromInt(-500)},
	}, nil)

	m.accounts.On("BulkCreate", ctx, mock.MatchedBy(func(rows []*domain.AccountSnapshot) bool {
		if len(rows) != 2 {
			return false
		}
		byAccount := make(map[uuid.UUID]decimal.Decimal, len(rows))
		for _, row := range rows {
			byAccount[row.AccountID] = row.TotalValue
		}
		return byAccount[accountA].Equal(decimal.NewFromInt(300000)) &&
			byAccount[accountB].Equal(decimal.NewFromInt(-500))
	})).Return(2, nil)

	result, err := svc.CreateDailySnapshots(ctx, testDate)

	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 4, result.TickerSnapshots.Processed)
	assert.Equal(t, 3, result.TickerSnapshots.Succeeded)
	assert.Equal(t, 1, result.TickerSnapshots.Failed)
	assert.Equal(t, 3, result.TickerSnapshots.Created)
	assert.Equal(t, 2, result.AccountSnapshots.Created)
	assert.Equal(t, 5, result.Created())

	// BTC row must be quantity times price; the manual row keeps its ticker NULL
	require.Len(t, insertedTickerRows, 3)
	assert.True(t, insertedTickerRows[0].Value.Equal(decimal.NewFromInt(100000)))
	assert.Nil(t, insertedTickerRows[1].Ticker)

	m.tickers.AssertExpectations(t)
	m.accounts.AssertExpectations(t)
}

func TestCreateDailySnapshots_NoValuableHoldings(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService()

	holdings := []*domain.Holding{
		{ID: uuid.New(), AccountID: uuid.New(), Ticker: strPtr("FAKE"), Name: "Unpriced", Quantity: decimal.NewFromInt(1), Category: domain.CategoryCrypto},
	}

	m.tickers.On("ExistsForDate", ctx, testDate).Return(false, nil)
	m.holdings.On("FindAll", ctx).Return(holdings, nil)
	m.prices.On("GetLatestPrices", ctx).Return([]*domain.PriceCacheEntry{}, nil)
	m.tickers.On("BulkCreate", ctx, mock.MatchedBy(func(rows []*domain.TickerSnapshot) bool {
		return len(rows) == 0
	})).Return(0, nil)
	m.tickers.On("FindByDate", ctx, testDate).Return([]*domain.TickerSnapshot{}, nil)
	m.accounts.On("BulkCreate", ctx, mock.MatchedBy(func(rows []*domain.AccountSnapshot) bool {
		return len(rows) == 0
	})).Return(0, nil)

	result, err := svc.CreateDailySnapshots(ctx, testDate)

	require.NoError(t, err)
	assert.Equal(t, 1, result.TickerSnapshots.Processed)
	assert.Equal(t, 0, result.TickerSnapshots.Succeeded)
	assert.Equal(t, 1, result.TickerSnapshots.Failed)
	assert.Equal(t, 0, result.Created())
}

func TestCreateDailySnapshots_AccountTotalsMatchTickerSums(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService()

	accountA := uuid.New()
	rows := []*domain.TickerSnapshot{
		{SnapshotDate: testDate, AccountID: accountA, Ticker: strPtr("BTC"), Name: "Bitcoin", Value: decimal.RequireFromString("123.45")},
		{SnapshotDate: testDate, AccountID: accountA, Ticker: strPtr("ETH"), Name: "Ethereum", Value: decimal.RequireFromString("0.55")},
	}

	m.tickers.On("FindByDate", ctx, testDate).Return(rows, nil)
	m.accounts.On("BulkCreate", ctx, mock.MatchedBy(func(snaps []*domain.AccountSnapshot) bool {
		return len(snaps) == 1 && snaps[0].TotalValue.Equal(decimal.RequireFromString("124.00"))
	})).Return(1, nil)

	result, err := svc.createAccountSnapshots(ctx, testDate)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	m.accounts.AssertExpectations(t)
}
