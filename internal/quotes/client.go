// Package quotes fetches prices from the upstream quote API and drives the
// polling loop that feeds Redis.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"papertrade-backend/internal/model"
)

// Client is a thin HTTP client for the quote API. One request per symbol,
// no retries: a failed fetch is just a missed tick, the next poll covers it.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a quote API client with the given request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

type quoteResponse struct {
	Symbol  string  `json:"symbol"`
	Price   float64 `json:"price"`
	Premium bool    `json:"premium"`
}

// Fetch retrieves the latest price for one symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (model.Quote, error) {
	u := fmt.Sprintf("%s/quote?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("build request for %s: %w", symbol, err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("fetch %s: upstream returned %d", symbol, resp.StatusCode)
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return model.Quote{}, fmt.Errorf("decode quote for %s: %w", symbol, err)
	}
	if math.IsNaN(qr.Price) || math.IsInf(qr.Price, 0) || qr.Price <= 0 {
		return model.Quote{}, fmt.Errorf("quote for %s has invalid price %v", symbol, qr.Price)
	}

	return model.Quote{
		Symbol:  symbol,
		Price:   qr.Price,
		Premium: qr.Premium,
		TS:      c.now().UTC(),
	}, nil
}
