package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

// CoinMarketCap quotes provider (requires an API key)

const defaultCoinMarketCapBaseURL = "https://pro-api.coinmarketcap.com"

type CoinMarketCap struct {
	cli     *http.Client
	baseURL string
	apiKey  string
	log     zerolog.Logger
}

func NewCoinMarketCap(apiKey string, log zerolog.Logger) *CoinMarketCap {
	return &CoinMarketCap{
		cli:     &http.Client{Timeout: requestTimeout},
		baseURL: defaultCoinMarketCapBaseURL,
		apiKey:  apiKey,
		log:     log,
	}
}

func (p *CoinMarketCap) Name() string { return "coinmarketcap" }

// Resolve fetches the latest USD quote for a symbol. Without an API key the
// provider yields no price without making a request.
func (p *CoinMarketCap) Resolve(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if p.apiKey == "" {
		return decimal.Decimal{}, fmt.Errorf("coinmarketcap: api key not configured: %w", domain.ErrNoPrice)
	}

	symbol := domain.NormalizeTicker(ticker)
	reqURL := fmt.Sprintf("%s/v1/cryptocurrency/quotes/latest?symbol=%s",
		p.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinmarketcap: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", p.apiKey)

	resp, err := p.cli.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinmarketcap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("coinmarketcap: http %d: %w", resp.StatusCode, domain.ErrNoPrice)
	}

	var raw struct {
		Data map[string]struct {
			Quote map[string]struct {
				Price float64 `json:"price"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinmarketcap: decode response: %w", err)
	}

	value := raw.Data[symbol].Quote["USD"].Price

	price, err := finitePrice(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coinmarketcap: %w", err)
	}

	p.log.Debug().Str("ticker", ticker).Str("price", price.String()).Msg("coinmarketcap price")
	return price, nil
}
