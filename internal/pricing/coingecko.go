package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
)

// RateProvider resolves an asset identifier to a USD-per-unit rate
type RateProvider interface {
	GetRate(ctx context.Context, coingeckoID string) (float64, error)
}

// CoinGecko fetches spot rates from the CoinGecko simple price API
type CoinGecko struct {
	baseURL string
	http    *providerClient
}

func NewCoinGecko(rps float64, maxFailures uint32, log zerolog.Logger) *CoinGecko {
	return &CoinGecko{
		baseURL: "https://api.coingecko.com/api/v3",
		http:    newProviderClient("coingecko", rps, maxFailures, log.With().Str("provider", "coingecko").Logger()),
	}
}

func (c *CoinGecko) GetRate(ctx context.Context, coingeckoID string) (float64, error) {
	reqURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(coingeckoID))

	body, err := c.http.call(ctx, "GET", reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch rate: %w", err)
	}

	var result map[string]map[string]float64
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse rate response: %w", err)
	}

	usd, ok := result[coingeckoID]["usd"]
	if !ok || usd <= 0 {
		return 0, fmt.Errorf("no usd rate in response for %s", coingeckoID)
	}

	return usd, nil
}
