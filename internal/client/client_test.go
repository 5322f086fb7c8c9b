package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "secret", 5*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func samplePlan() models.PurchaseConfiguration {
	return models.PurchaseConfiguration{
		Duration:        models.Duration{Value: 1, Unit: models.DurationYear},
		Capacity:        models.Capacity{Value: 1, Unit: models.CapacityTB},
		TargetAddresses: []string{"jkl1a", "jkl1b"},
	}
}

func TestPrice(t *testing.T) {
	var gotForce string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/price", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		gotForce = r.URL.Query().Get("force")
		writeJSON(w, http.StatusOK, map[string]interface{}{"price_usd": 0.08, "stale": true, "warning": "feed down"})
	})

	price, err := c.Price(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "true", gotForce)
	assert.Equal(t, 0.08, price.PriceUSD)
	assert.True(t, price.Stale)
	assert.Equal(t, "feed down", price.Warning)
}

func TestQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var pc models.PurchaseConfiguration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pc))
		assert.Equal(t, 12, pc.Duration.Months())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"months":      12,
			"capacity_gb": 1024,
			"wallets":     2,
			"total_usd":   "300",
			"total_token": "3750",
			"price":       map[string]interface{}{"price_usd": 0.08},
		})
	})

	quote, err := c.Quote(context.Background(), samplePlan())
	require.NoError(t, err)
	assert.Equal(t, "300", quote.TotalUSD.String())
	assert.Equal(t, "3750", quote.TotalToken.String())
	assert.Equal(t, 0.08, quote.Price.PriceUSD)
}

func TestPurchaseStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   models.PurchaseResponse
	}{
		{"success", http.StatusOK, models.PurchaseResponse{BatchID: "b1", Status: models.BatchSuccess, Succeeded: 2}},
		{"partial", http.StatusMultiStatus, models.PurchaseResponse{BatchID: "b2", Status: models.BatchPartial, Succeeded: 1, Failed: 1}},
		{"failed", http.StatusBadGateway, models.PurchaseResponse{BatchID: "b3", Status: models.BatchFailed, Failed: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "order-1", r.Header.Get(idempotencyHeader))
				w.Header().Set(replayedHeader, "true")
				writeJSON(w, tt.status, tt.body)
			})

			result, err := c.Purchase(context.Background(), samplePlan(), "order-1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.StatusCode)
			assert.Equal(t, tt.body.BatchID, result.BatchID)
			assert.Equal(t, tt.body.Status, result.Status)
			assert.True(t, result.Replayed)
		})
	}
}

func TestPurchaseErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
			Code:    models.ErrorCodeInvalidWallet,
			Message: "Invalid wallet address format: cosmos1x",
		}})
	})

	_, err := c.Purchase(context.Background(), samplePlan(), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, models.ErrorCodeInvalidWallet, apiErr.Detail.Code)
}

func TestPurchaseForeignBadGateway(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream connect error"))
	})

	_, err := c.Purchase(context.Background(), samplePlan(), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestGetPurchaseNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/purchases/missing", r.URL.Path)
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{Code: models.ErrorCodeNotFound, Message: "Purchase record not found"}})
	})

	_, err := c.GetPurchase(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, models.ErrorCodeNotFound, apiErr.Detail.Code)
	assert.Contains(t, apiErr.Error(), "NOT_FOUND")
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "degraded"})
	})

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", status)
}
