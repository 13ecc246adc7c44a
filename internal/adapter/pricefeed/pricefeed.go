// Package pricefeed contains the outbound price provider clients.
//
// Each provider implements domain.PriceProvider: it either returns a finite
// USD price or an error, and never blocks past its client timeout. Providers
// are tried in order by the pricing service; an error here just moves the
// waterfall along.
package pricefeed

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

const requestTimeout = 5 * time.Second

// finitePrice converts a parsed float into a decimal, rejecting NaN,
// infinities and zero-or-missing values as "no price".
func finitePrice(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Decimal{}, fmt.Errorf("non-finite price %v: %w", v, domain.ErrNoPrice)
	}
	if v <= 0 {
		return decimal.Decimal{}, fmt.Errorf("missing or non-positive price: %w", domain.ErrNoPrice)
	}
	return decimal.NewFromFloat(v), nil
}
