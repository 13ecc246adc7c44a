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

// CoinGecko simple-price provider (free tier; needs a symbol -> coin id lookup)

type CoinGecko struct {
	cli     *http.Client
	baseURL string
	apiKey  string
	symbols *SymbolMap
	log     zerolog.Logger
}

// NewCoinGecko creates the CoinGecko provider. The symbol map is shared
// process-wide and injected rather than owned here.
func NewCoinGecko(symbols *SymbolMap, apiKey string, log zerolog.Logger) *CoinGecko {
	return &CoinGecko{
		cli:     &http.Client{Timeout: requestTimeout},
		baseURL: defaultCoinGeckoBaseURL,
		apiKey:  apiKey,
		symbols: symbols,
		log:     log,
	}
}

func (p *CoinGecko) Name() string { return "coingecko" }

// Resolve maps the ticker to a coin id via the cached catalog, then fetches
// the USD price for that id.
func (p *CoinGecko) Resolve(ctx context.Context, ticker string) (decimal.Decimal, error) {
	coinID, ok := p.symbols.Lookup(ctx, ticker)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("coingecko: no coin id for %q: %w", ticker, domain.ErrNoPrice)
	}

	reqURL := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd",
		p.baseURL, url.QueryEscape(coinID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coingecko: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-cg-api-key", p.apiKey)
	}

	resp, err := p.cli.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coingecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("coingecko: http %d: %w", resp.StatusCode, domain.ErrNoPrice)
	}

	var raw map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return decimal.Decimal{}, fmt.Errorf("coingecko: decode response: %w", err)
	}

	value, found := raw[coinID]["usd"]
	if !found {
		return decimal.Decimal{}, fmt.Errorf("coingecko: missing usd price for %q: %w", ticker, domain.ErrNoPrice)
	}

	price, err := finitePrice(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("coingecko: %w", err)
	}

	p.log.Debug().Str("ticker", ticker).Str("price", price.String()).Msg("coingecko price")
	return price, nil
}
