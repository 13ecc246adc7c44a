package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
	"github.com/pcervantes/patrimonio-backend/internal/observability"
)

// Service resolves USD spot prices through an ordered waterfall of providers
// and caches every successful resolution.
type Service struct {
	Providers      []domain.PriceProvider
	PriceCacheRepo domain.PriceCacheRepository
	Metrics        *observability.Metrics
	Log            zerolog.Logger
}

// NewService creates a new pricing Service instance.
// Providers are tried in the order given.
func NewService(
	providers []domain.PriceProvider,
	priceCacheRepo domain.PriceCacheRepository,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		Providers:      providers,
		PriceCacheRepo: priceCacheRepo,
		Metrics:        metrics,
		Log:            log,
	}
}

// Quote is a resolved price and the provider that produced it
type Quote struct {
	Price  decimal.Decimal
	Source string
}

// TickerResult is the per-ticker outcome of a batch fetch
type TickerResult struct {
	Ticker  string          `json:"ticker"`
	Price   decimal.Decimal `json:"price,omitempty"`
	Source  string          `json:"source,omitempty"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
}

// FetchPrice tries each provider in order and returns the first success.
// Provider failures are logged and recovered here; only when every provider
// yields nothing does the resolution fail, with domain.ErrNoPrice.
func (s *Service) FetchPrice(ctx context.Context, ticker string) (*Quote, error) {
	for _, provider := range s.Providers {
		start := time.Now()
		price, err := provider.Resolve(ctx, ticker)
		s.observeProvider(provider.Name(), time.Since(start), err)

		if err != nil {
			s.Log.Debug().
				Str("ticker", ticker).
				Str("provider", provider.Name()).
				Err(err).
				Msg("provider yielded no price")
			continue
		}

		s.Log.Info().
			Str("ticker", ticker).
			Str("provider", provider.Name()).
			Str("price", price.String()).
			Msg("price resolved")
		return &Quote{Price: price, Source: provider.Name()}, nil
	}

	return nil, fmt.Errorf("all price providers failed for %q: %w", ticker, domain.ErrNoPrice)
}

// FetchPricesForTickers resolves each ticker in turn and upserts every
// success into the price cache immediately, so a failure at ticker N never
// discards the results for tickers before it. The returned slice has exactly
// one entry per requested ticker, in request order.
func (s *Service) FetchPricesForTickers(ctx context.Context, tickers []string) []TickerResult {
	results := make([]TickerResult, 0, len(tickers))

	for _, ticker := range tickers {
		quote, err := s.FetchPrice(ctx, ticker)
		if err != nil {
			results = append(results, TickerResult{
				Ticker:  ticker,
				Success: false,
				Error:   "all price providers failed",
			})
			continue
		}

		if _, err := s.PriceCacheRepo.Upsert(ctx, ticker, quote.Price, quote.Source); err != nil {
			s.Log.Error().
				Str("ticker", ticker).
				Err(err).
				Msg("failed to cache resolved price")
			results = append(results, TickerResult{
				Ticker:  ticker,
				Success: false,
				Error:   err.Error(),
			})
			continue
		}

		if s.Metrics != nil {
			s.Metrics.PriceUpserts.Inc()
		}
		results = append(results, TickerResult{
			Ticker:  ticker,
			Price:   quote.Price,
			Source:  quote.Source,
			Success: true,
		})
	}

	return results
}

func (s *Service) observeProvider(name string, elapsed time.Duration, err error) {
	if s.Metrics == nil {
		return
	}
	outcome := "hit"
	if err != nil {
		outcome = "miss"
	}
	s.Metrics.ProviderRequests.WithLabelValues(name, outcome).Inc()
	s.Metrics.ProviderLatency.WithLabelValues(name).Observe(elapsed.Seconds())
}
