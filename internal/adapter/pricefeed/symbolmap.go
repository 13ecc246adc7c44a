package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com"

	// symbolMapTTL is how long a fetched catalog stays valid. The catalog
	// fetch is expensive (tens of thousands of entries), so it is refreshed
	// at most once per TTL window.
	symbolMapTTL = 6 * time.Hour
)

// SymbolMap caches the CoinGecko ticker-symbol to coin-id mapping,
// rebuilt from a full catalog fetch when stale or absent.
type SymbolMap struct {
	cli     *http.Client
	baseURL string
	apiKey  string
	ttl     time.Duration
	log     zerolog.Logger

	mu        sync.Mutex
	ids       map[string]string // upper-cased symbol -> coin id
	fetchedAt time.Time
}

// NewSymbolMap creates the process-wide symbol-id cache.
// apiKey is optional; when set it is sent as the x-cg-api-key header.
func NewSymbolMap(apiKey string, log zerolog.Logger) *SymbolMap {
	return &SymbolMap{
		cli:     &http.Client{Timeout: requestTimeout},
		baseURL: defaultCoinGeckoBaseURL,
		apiKey:  apiKey,
		ttl:     symbolMapTTL,
		log:     log,
	}
}

// Lookup returns the coin id for a ticker symbol, refreshing the catalog
// first if the cache is stale or absent. A catalog-fetch failure is treated
// as "no id found", not a hard error.
func (m *SymbolMap) Lookup(ctx context.Context, ticker string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids == nil || time.Since(m.fetchedAt) >= m.ttl {
		if err := m.refreshLocked(ctx); err != nil {
			m.log.Warn().Err(err).Msg("symbol catalog refresh failed")
			return "", false
		}
	}

	id, ok := m.ids[domain.NormalizeTicker(ticker)]
	return id, ok
}

func (m *SymbolMap) refreshLocked(ctx context.Context) error {
	url := m.baseURL + "/api/v3/coins/list?include_platform=false"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if m.apiKey != "" {
		req.Header.Set("x-cg-api-key", m.apiKey)
	}

	resp, err := m.cli.Do(req)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch catalog: http %d", resp.StatusCode)
	}

	var catalog []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	ids := make(map[string]string, len(catalog))
	for _, coin := range catalog {
		if coin.Symbol == "" {
			continue
		}
		ids[domain.NormalizeTicker(coin.Symbol)] = coin.ID
	}

	m.ids = ids
	m.fetchedAt = time.Now()
	m.log.Info().Int("symbols", len(ids)).Msg("symbol catalog refreshed")
	return nil
}
