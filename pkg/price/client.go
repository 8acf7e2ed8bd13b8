// Package price fetches the current SOL/USD quote from a simple-price REST
// API (CoinGecko-compatible response shape).
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

// DefaultQuoteUrl is the CoinGecko simple-price endpoint for SOL in USD.
const DefaultQuoteUrl = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"

type (
	Client struct {
		httpClient  *http.Client
		quoteUrl    string
		httpTimeout time.Duration
		logger      *zap.SugaredLogger
	}

	quoteResponse struct {
		Solana struct {
			Usd *float64 `json:"usd"`
		} `json:"solana"`
	}
)

func NewClient(httpClient *http.Client, quoteUrl string, httpTimeout time.Duration) *Client {
	if quoteUrl == "" {
		quoteUrl = DefaultQuoteUrl
	}
	return &Client{httpClient: httpClient, quoteUrl: quoteUrl, httpTimeout: httpTimeout, logger: slog.Get()}
}

// GetSolPrice returns the current SOL price in USD. Any transport, status or
// decode failure is returned as an error; callers treat it as "quote
// unavailable" for the current scrape.
func (c *Client) GetSolPrice(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteUrl, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("error reading price response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("price request returned http status %d: %s", resp.StatusCode, string(body))
	}

	var quote quoteResponse
	if err = json.Unmarshal(body, &quote); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}
	if quote.Solana.Usd == nil {
		return 0, fmt.Errorf("price response is missing the solana.usd field: %s", string(body))
	}
	return *quote.Solana.Usd, nil
}
