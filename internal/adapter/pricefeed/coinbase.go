package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

// Coinbase spot price provider (free, no auth needed)

const defaultCoinbaseBaseURL = "https://api.coinbase.com"

type Coinbase struct {
	cli     *http.Client
	baseURL string
	log     zerolog.Logger
}

func NewCoinbase(log zerolog.Logger) *Coinbase {
	return &Coinbase{
		cli:     &http.Client{Timeout: requestTimeout},
		baseURL: defaultCoinbaseBaseURL,
		log:     log,
	}
}

func (p *Coinbase) Name() string { return "coinbase" }

// Resolve fetches the USD spot price for a currency pair like BTC-USD
func (p *Coinbase) Resolve(ctx context.Context, ticker string) (decimal.Decimal, error) {
	pair := domain.NormalizeTicker(ticker) + "-USD"
	url := fmt.Sprintf("%s/v2/prices/%s/spot", p.baseURL, pair)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinbase: build request: %w", err)
	}

	resp, err := p.cli.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinbase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("coinbase: http %d: %w", resp.StatusCode, domain.ErrNoPrice)
	}

	var raw struct {
		Data struct {
			Amount   string `json:"amount"`
			Currency string `json:"currency"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinbase: decode response: %w", err)
	}

	value, err := strconv.ParseFloat(raw.Data.Amount, 64)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinbase: malformed amount %q: %w", raw.Data.Amount, domain.ErrNoPrice)
	}

	price, err := finitePrice(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinbase: %w", err)
	}

	p.log.Debug().Str("ticker", ticker).Str("price", price.String()).Msg("coinbase price")
	return price, nil
}
