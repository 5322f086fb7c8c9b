package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
)

// CoinGeckoFeed reads USD prices from the CoinGecko simple price endpoint
type CoinGeckoFeed struct {
	baseURL string
	tokenID string
	client  *http.Client
}

// NewCoinGeckoFeed creates a feed for the configured token
func NewCoinGeckoFeed(cfg *config.PriceConfig) *CoinGeckoFeed {
	return &CoinGeckoFeed{
		baseURL: strings.TrimRight(cfg.FeedURL, "/"),
		tokenID: cfg.TokenID,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// FetchUSDPrice returns the token's current USD price
func (f *CoinGeckoFeed) FetchUSDPrice(ctx context.Context) (float64, error) {
	query := url.Values{}
	query.Set("ids", f.tokenID)
	query.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("price feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	entry, ok := payload[f.tokenID]
	if !ok || entry.USD == nil {
		return 0, fmt.Errorf("price response has no usd value for %s", f.tokenID)
	}
	return *entry.USD, nil
}
