package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentPurchasesSerialized fires overlapping batches and checks the
// backend never builds two transactions at once.
func TestConcurrentPurchasesSerialized(t *testing.T) {
	ts := setupTestServer(t, 20*time.Millisecond)

	const batches = 5
	var (
		wg       sync.WaitGroup
		okCount  int64
		statuses = make([]int, batches)
	)
	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"duration":{"value":1},"capacity":{"value":1,"unit":"GB"},"target_addresses":["jkl1w%da","jkl1w%db"]}`, i, i)
			w := ts.request(http.MethodPost, "/api/purchase", body, nil)
			statuses[i] = w.Code
			if w.Code == http.StatusOK {
				atomic.AddInt64(&okCount, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(batches), okCount, "statuses: %v", statuses)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ts.bridge.overlapped))

	// each batch's wallets are contiguous
	receivers := ts.bridge.Receivers()
	require.Len(t, receivers, batches*2)
	for i := 0; i < len(receivers); i += 2 {
		assert.Equal(t, strings.TrimSuffix(receivers[i], "a"), strings.TrimSuffix(receivers[i+1], "b"))
	}
}

func TestResponseTimingHeaders(t *testing.T) {
	ts := setupTestServer(t, 0)

	w := ts.request(http.MethodGet, "/api/price", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Response-Time"))
	assert.NotEmpty(t, w.Header().Get("X-Response-Time-Ms"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
}

func TestRequestBodyLimit(t *testing.T) {
	ts := setupTestServer(t, 0)

	addresses := make([]string, 0, 40000)
	for i := 0; i < 40000; i++ {
		addresses = append(addresses, fmt.Sprintf("jkl1%030d", i))
	}
	payload, err := json.Marshal(models.PurchaseConfiguration{
		Duration:        models.Duration{Value: 1, Unit: models.DurationMonth},
		Capacity:        models.Capacity{Value: 1, Unit: models.CapacityGB},
		TargetAddresses: addresses,
	})
	require.NoError(t, err)
	require.Greater(t, len(payload), maxRequestBodyBytes)

	w := ts.request(http.MethodPost, "/api/purchase", string(payload), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, ts.bridge.Receivers())
}

func BenchmarkQuote(b *testing.B) {
	ts := setupTestServer(b, 0)
	body := `{"duration":{"value":1,"unit":"year"},"capacity":{"value":5,"unit":"TB"},"target_addresses":["jkl1a","jkl1b","jkl1c"]}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", testAPIKey)
		w := httptest.NewRecorder()
		ts.engine.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", w.Code)
		}
	}
}
