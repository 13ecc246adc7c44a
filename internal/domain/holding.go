package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category classifies what kind of asset a holding is
type Category string

const (
	CategoryCrypto     Category = "Crypto"
	CategorySecurities Category = "Securities"
	CategoryRealEstate Category = "Real Estate"
	CategoryDebt       Category = "Debt"
)

// Holding represents a position in an account. This core only reads holdings;
// they are created and edited elsewhere.
//
// A holding is valued either from a market price (it carries a ticker) or from
// a manually assigned value (real estate, debt). See Valuate.
type Holding struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	AccountName string
	Ticker      *string // upper-cased on the read side, NULL for manually valued assets
	Name        string
	Quantity    decimal.Decimal
	ManualValue *decimal.Decimal
	Category    Category
	Notes       string
	UpdatedAt   time.Time
}

// ValuationKind tags which branch of the valuation policy applied
type ValuationKind int

const (
	ValuationPriced ValuationKind = iota
	ValuationManual
	ValuationUnvaluable
)

// Valuation is the outcome of valuing a holding against a set of prices
type Valuation struct {
	Kind  ValuationKind
	Value decimal.Decimal // zero when Unvaluable
}

// Valuate applies the valuation policy:
//   - ticker present and a price is cached: quantity × price
//   - otherwise, manual value present: the manual value as-is (may be negative)
//   - otherwise: unvaluable
//
// prices is keyed by upper-cased ticker.
func (h *Holding) Valuate(prices map[string]decimal.Decimal) Valuation {
	if h.Ticker != nil {
		if price, ok := prices[strings.ToUpper(*h.Ticker)]; ok {
			return Valuation{Kind: ValuationPriced, Value: h.Quantity.Mul(price)}
		}
	}
	if h.ManualValue != nil {
		return Valuation{Kind: ValuationManual, Value: *h.ManualValue}
	}
	return Valuation{Kind: ValuationUnvaluable}
}
