/**
 * @description
 * This package provides a client for a public exchange-rate feed. It fetches the
 * latest USD-based rate table used for display-only currency conversion.
 */
package fxclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the exchange-rate API.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a new exchange-rate client for a "latest rates" endpoint.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// LatestRatesResponse is the rate table returned by the API.
type LatestRatesResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// LatestRates fetches the current rate table.
func (c *Client) LatestRates(ctx context.Context) (*LatestRatesResponse, error) {
	if c.url == "" {
		return nil, fmt.Errorf("exchange rate url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to exchange rate api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("exchange rate api returned error status %d", resp.StatusCode)
	}

	var response LatestRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Rates) == 0 {
		return nil, fmt.Errorf("exchange rate api returned no rates")
	}

	return &response, nil
}
