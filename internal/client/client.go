// Package client is a Go client for the multi-wallet purchase API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// APIError is an error response from the server
type APIError struct {
	StatusCode int
	Detail     models.ErrorDetail
}

func (e *APIError) Error() string {
	if e.Detail.Details != "" {
		return fmt.Sprintf("%d %s: %s (%s)", e.StatusCode, e.Detail.Code, e.Detail.Message, e.Detail.Details)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Detail.Code, e.Detail.Message)
}

// Price is the server's current token price
type Price struct {
	PriceUSD  float64    `json:"price_usd"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	Stale     bool       `json:"stale"`
	Warning   string     `json:"warning,omitempty"`
}

// Quote is a price estimate together with the price it was computed from
type Quote struct {
	models.Quote
	Price Price `json:"price"`
}

// PurchaseResult is a completed batch. Replayed is set when the server answered from its idempotency cache.
type PurchaseResult struct {
	models.PurchaseResponse
	StatusCode int
	Replayed   bool
}

// Client calls the purchase API with an API key
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client. The HTTP timeout must cover a whole purchase batch.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, in interface{}) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do sends req and decodes the body into out when the status is one of ok
func (c *Client) do(req *http.Request, out interface{}, ok ...int) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	accepted := len(ok) == 0 && resp.StatusCode == http.StatusOK
	for _, code := range ok {
		if resp.StatusCode == code {
			accepted = true
		}
	}
	if !accepted {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload models.ErrorResponse
		if json.Unmarshal(body, &payload) == nil && payload.Error.Code != "" {
			apiErr.Detail = payload.Error
		} else {
			apiErr.Detail.Message = strings.TrimSpace(string(body))
		}
		return resp, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp, nil
}

// Price returns the token price. force bypasses the server's refresh interval.
func (c *Client) Price(ctx context.Context, force bool) (*Price, error) {
	path := "/api/price"
	if force {
		path += "?force=true"
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var price Price
	if _, err := c.do(req, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

// Quote prices a purchase configuration without buying anything
func (c *Client) Quote(ctx context.Context, pc models.PurchaseConfiguration) (*Quote, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/quote", pc)
	if err != nil {
		return nil, err
	}
	var quote Quote
	if _, err := c.do(req, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// Purchase buys the plan for every address. Partial and total failures are
// results, not errors: inspect Status and Outcomes. idempotencyKey may be empty.
func (c *Client) Purchase(ctx context.Context, pc models.PurchaseConfiguration, idempotencyKey string) (*PurchaseResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/purchase", pc)
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	var result PurchaseResult
	resp, err := c.do(req, &result.PurchaseResponse, http.StatusOK, http.StatusMultiStatus, http.StatusBadGateway)
	// a 502 without a batch id did not come from the purchase handler
	if resp != nil && resp.StatusCode == http.StatusBadGateway && (err != nil || result.BatchID == "") {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: models.ErrorDetail{Message: "bad gateway"}}
	}
	if err != nil {
		return nil, err
	}
	result.StatusCode = resp.StatusCode
	result.Replayed = resp.Header.Get(replayedHeader) == "true"
	return &result, nil
}

// GetPurchase returns the record of an earlier batch
func (c *Client) GetPurchase(ctx context.Context, batchID string) (*models.PurchaseRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/purchases/"+batchID, nil)
	if err != nil {
		return nil, err
	}
	var record models.PurchaseRecord
	if _, err := c.do(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Health reports the server's overall health status
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return "", err
	}
	var health struct {
		Status string `json:"status"`
	}
	if _, err := c.do(req, &health); err != nil {
		return "", err
	}
	return health.Status, nil
}
