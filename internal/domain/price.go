package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned by a PriceProvider when it cannot produce a price
// for a ticker (timeout, non-2xx response, malformed payload, unknown symbol,
// non-finite value). It is recoverable: the acquisition waterfall moves on to
// the next provider.
var ErrNoPrice = errors.New("no price available")

// PriceProvider resolves a USD spot price for a ticker symbol.
// Implementations must bound every call with a timeout and report failures
// via error rather than panicking.
type PriceProvider interface {
	// Name identifies the provider in results, logs and the price cache
	Name() string

	// Resolve returns the current USD price for the ticker, or ErrNoPrice
	// (possibly wrapped) when the provider has nothing usable.
	Resolve(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// PriceCacheEntry is the latest known price for a ticker. One row per ticker,
// latest value wins; no history is retained here.
type PriceCacheEntry struct {
	Ticker    string // upper-cased, unique
	PriceUSD  decimal.Decimal
	Source    string // provider name that produced the price
	FetchedAt time.Time
}

// NormalizeTicker canonicalizes a ticker symbol for use as a cache key
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
