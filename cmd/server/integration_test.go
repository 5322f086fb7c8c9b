package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/internal/handlers"
	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/internal/store"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testAPIKey = "integration-key"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.ReplaceGlobal(logger.NewNop())
	os.Exit(m.Run())
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	mu        sync.RWMutex
	validKeys map[string]*models.APIKey
	callCount int64
}

func NewMockAuthService() *MockAuthService {
	return &MockAuthService{validKeys: make(map[string]*models.APIKey)}
}

// AddValidKey adds a purchasing API key for testing
func (m *MockAuthService) AddValidKey(key string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validKeys[key] = &models.APIKey{
		ID:          primitive.NewObjectID(),
		Key:         key,
		Name:        "Test Key " + key,
		Active:      active,
		CanPurchase: true,
		CreatedAt:   time.Now(),
	}
}

func (m *MockAuthService) ValidateAPIKey(_ context.Context, key string) (*models.APIKey, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	apiKey, exists := m.validKeys[key]
	if !exists {
		return nil, services.ErrInvalidAPIKey
	}
	if !apiKey.Active {
		return nil, services.ErrInactiveAPIKey
	}
	return apiKey, nil
}

// MemoryRecorder keeps purchase records in memory
type MemoryRecorder struct {
	mu      sync.Mutex
	records map[string]*models.PurchaseRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{records: make(map[string]*models.PurchaseRecord)}
}

func (m *MemoryRecorder) SavePurchase(_ context.Context, record *models.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.BatchID] = record
	return nil
}

func (m *MemoryRecorder) GetPurchase(_ context.Context, batchID string) (*models.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[batchID]
	if !ok {
		return nil, models.ErrPurchaseNotFound
	}
	return record, nil
}

// fakeBridge plays the wallet bridge. Purchases for "jkl1broke" are refused
// and broadcasts can be slowed down.
type fakeBridge struct {
	mu         sync.Mutex
	receivers  []string
	connects   int
	inFlight   int32
	overlapped int32
	delay      time.Duration
}

func (b *fakeBridge) handler() http.Handler {
	reply := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/wallet/enable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/wallet/accounts", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]interface{}{"accounts": []services.Account{{Address: "jkl1signer"}}})
	})
	mux.HandleFunc("/v1/connect", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.connects++
		b.mu.Unlock()
		reply(w, http.StatusOK, map[string]string{"session_id": "session-1", "address": "jkl1signer"})
	})
	for _, path := range []string{"/v1/storage-handler", "/v1/provider-pool", "/v1/signer/upgrade"} {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	mux.HandleFunc("/v1/plans/purchase", func(w http.ResponseWriter, r *http.Request) {
		var opts services.PlanOptions
		_ = json.NewDecoder(r.Body).Decode(&opts)

		if n := atomic.AddInt32(&b.inFlight, 1); n > 1 {
			atomic.StoreInt32(&b.overlapped, 1)
		}
		defer atomic.AddInt32(&b.inFlight, -1)

		b.mu.Lock()
		b.receivers = append(b.receivers, opts.Receiver)
		b.mu.Unlock()

		if opts.Receiver == "jkl1broke" {
			reply(w, http.StatusOK, services.PlanResponse{Errors: true, ErrorText: "account sequence mismatch"})
			return
		}
		value, _ := json.Marshal(opts)
		reply(w, http.StatusOK, services.PlanResponse{TxEvents: []services.TxEvent{{TypeURL: "/canine_chain.storage.MsgBuyStorage", Value: value}}})
	})
	mux.HandleFunc("/v1/broadcast", func(w http.ResponseWriter, r *http.Request) {
		if b.delay > 0 {
			time.Sleep(b.delay)
		}
		reply(w, http.StatusOK, services.BroadcastResult{TxHash: "TX" + strings.Repeat("A", 8), Height: 100})
	})
	mux.HandleFunc("/v1/plans/status", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, services.PlanStatus{Owner: "jkl1signer", Active: true, TotalBytes: 1 << 40})
	})
	return mux
}

func (b *fakeBridge) Receivers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.receivers...)
}

type testServer struct {
	server   *Server
	engine   *gin.Engine
	bridge   *fakeBridge
	recorder *MemoryRecorder
	redis    *miniredis.Miniredis
	feedHits *int64
}

func setupTestServer(t testing.TB, bridgeDelay time.Duration) *testServer {
	t.Helper()

	var feedHits int64
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&feedHits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jackal-protocol":{"usd":0.08}}`))
	}))
	t.Cleanup(feed.Close)

	bridge := &fakeBridge{delay: bridgeDelay}
	bridgeSrv := httptest.NewServer(bridge.handler())
	t.Cleanup(bridgeSrv.Close)

	mr := miniredis.RunT(t)
	redisCfg := config.RedisConfig{Addr: mr.Addr(), PriceKey: "test:price"}
	redisClient := store.NewRedisClient(&redisCfg)
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := config.Default()
	cfg.Price.FeedURL = feed.URL
	cfg.Price.FallbackPrice = 0.08
	cfg.Gateway.URL = bridgeSrv.URL
	cfg.Gateway.Timeout = 5 * time.Second
	cfg.Chain.BroadcastTimeout = 2 * time.Second
	cfg.RateLimit.RequestsPerMinute = 1000

	auth := NewMockAuthService()
	auth.AddValidKey(testAPIKey, true)
	auth.AddValidKey("inactive-key", false)

	gateway := services.NewGatewayClient(&cfg.Gateway)
	recorder := NewMemoryRecorder()

	s := newServer(&cfg, dependencies{
		auth:      auth,
		feed:      services.NewCoinGeckoFeed(&cfg.Price),
		snapshots: store.NewPriceSnapshotStore(redisClient, redisCfg.PriceKey),
		connector: gateway,
		wallet:    gateway,
		recorder:  recorder,
	})
	t.Cleanup(s.purchaseHandler.Stop)

	return &testServer{
		server:   s,
		engine:   s.Engine(),
		bridge:   bridge,
		recorder: recorder,
		redis:    mr,
		feedHits: &feedHits,
	}
}

func (ts *testServer) request(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", testAPIKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func TestPurchaseEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)

	body := `{
		"duration": {"value": 1, "unit": "year"},
		"capacity": {"value": 2, "unit": "TB"},
		"target_addresses": ["jkl1alice", "jkl1broke", "jkl1bob"],
		"referral_code": " friend "
	}`
	w := ts.request(http.MethodPost, "/api/purchase", body, nil)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	var resp models.PurchaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.BatchPartial, resp.Status)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)

	// outcomes follow input order
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, "jkl1alice", resp.Outcomes[0].Wallet)
	assert.True(t, resp.Outcomes[0].Success)
	assert.NotEmpty(t, resp.Outcomes[0].TxHash)
	assert.Equal(t, "jkl1broke", resp.Outcomes[1].Wallet)
	assert.False(t, resp.Outcomes[1].Success)
	assert.Contains(t, resp.Outcomes[1].Error, "account sequence mismatch")
	assert.Equal(t, "jkl1bob", resp.Outcomes[2].Wallet)

	assert.Equal(t, []string{"jkl1alice", "jkl1broke", "jkl1bob"}, ts.bridge.Receivers())

	// the batch is recorded and readable by the same key
	w = ts.request(http.MethodGet, "/api/purchases/"+resp.BatchID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var record models.PurchaseRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, 2048, record.CapacityGB)
	assert.Equal(t, 12, record.Months)
	assert.Equal(t, 360, record.Days)
	assert.Equal(t, "friend", record.ReferralCode)
	assert.Equal(t, "jkl1signer", record.ConnectedWallet)
	assert.Equal(t, models.BatchPartial, record.Status)
}

func TestPurchaseValidationEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)

	tests := []struct {
		name string
		body string
		code models.ErrorCode
	}{
		{"no addresses", `{"duration":{"value":1},"capacity":{"value":1,"unit":"TB"},"target_addresses":[" "]}`, models.ErrorCodeEmptyWalletArray},
		{"foreign address", `{"duration":{"value":1},"capacity":{"value":1,"unit":"TB"},"target_addresses":["cosmos1abc"]}`, models.ErrorCodeInvalidWallet},
		{"zero capacity", `{"duration":{"value":1},"capacity":{"value":0},"target_addresses":["jkl1a"]}`, models.ErrorCodeInvalidRequest},
		{"capacity wraps", `{"duration":{"value":1},"capacity":{"value":18014398509481985,"unit":"TB"},"target_addresses":["jkl1a"]}`, models.ErrorCodeInvalidRequest},
		{"duration wraps", `{"duration":{"value":768614336404564651,"unit":"year"},"capacity":{"value":1,"unit":"TB"},"target_addresses":["jkl1a"]}`, models.ErrorCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.request(http.MethodPost, "/api/purchase", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	// nothing reached the backend
	assert.Empty(t, ts.bridge.Receivers())
	assert.Equal(t, 0, ts.bridge.connects)
}

func TestTotalFailureEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)

	body := `{"duration":{"value":1},"capacity":{"value":1,"unit":"TB"},"target_addresses":["jkl1broke"]}`
	w := ts.request(http.MethodPost, "/api/purchase", body, nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp models.PurchaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.BatchFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrorCodePurchaseFailed, resp.Error.Code)
	require.Len(t, resp.Outcomes, 1)

	// failed batches are still recorded
	_, err := ts.recorder.GetPurchase(context.Background(), resp.BatchID)
	assert.NoError(t, err)
}

func TestSessionReusedAcrossRequests(t *testing.T) {
	ts := setupTestServer(t, 0)

	body := `{"duration":{"value":1},"capacity":{"value":1,"unit":"GB"},"target_addresses":["jkl1a"]}`
	for i := 0; i < 3; i++ {
		w := ts.request(http.MethodPost, "/api/purchase", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, ts.bridge.connects)
	assert.Equal(t, "jkl1signer", ts.server.storageService.ConnectedAddress())
}

func TestWarmStorageSession(t *testing.T) {
	ts := setupTestServer(t, 0)

	ts.server.warmStorageSession(context.Background())
	assert.Equal(t, 1, ts.bridge.connects)
	assert.Equal(t, "jkl1signer", ts.server.storageService.ConnectedAddress())

	body := `{"duration":{"value":1},"capacity":{"value":1,"unit":"GB"},"target_addresses":["jkl1a"]}`
	w := ts.request(http.MethodPost, "/api/purchase", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ts.bridge.connects)
}

func TestQuoteEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)

	body := `{"duration":{"value":1,"unit":"month"},"capacity":{"value":2,"unit":"TB"},"target_addresses":["jkl1a"]}`
	w := ts.request(http.MethodPost, "/api/quote", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp handlers.QuoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "30", resp.TotalUSD.String())
	assert.Equal(t, "375", resp.TotalToken.String())
	assert.Equal(t, 0.08, resp.Price.PriceUSD)
	assert.False(t, resp.Price.Stale)

	// accepted prices are persisted for the next start
	assert.True(t, ts.redis.Exists("test:price"))
}

func TestPriceCachedBetweenRequests(t *testing.T) {
	ts := setupTestServer(t, 0)

	for i := 0; i < 5; i++ {
		w := ts.request(http.MethodGet, "/api/price", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(ts.feedHits))

	w := ts.request(http.MethodGet, "/api/price?force=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), atomic.LoadInt64(ts.feedHits))
}

func TestIdempotentPurchaseEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)
	headers := map[string]string{handlers.IdempotencyHeader: "checkout-1"}
	body := `{"duration":{"value":1},"capacity":{"value":1,"unit":"TB"},"target_addresses":["jkl1a","jkl1b"]}`

	first := ts.request(http.MethodPost, "/api/purchase", body, headers)
	second := ts.request(http.MethodPost, "/api/purchase", body, headers)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(handlers.ReplayedHeader))
	assert.Len(t, ts.bridge.Receivers(), 2)
}

func TestStorageStatusAndWalletEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)

	w := ts.request(http.MethodGet, "/api/storage/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status services.PlanStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Active)

	w = ts.request(http.MethodPost, "/api/wallet/connect", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jkl1signer")
}

func TestAuthenticationEndToEnd(t *testing.T) {
	ts := setupTestServer(t, 0)

	w := ts.request(http.MethodGet, "/api/price", "", map[string]string{"Authorization": "inactive-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.request(http.MethodGet, "/api/price", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// unauthenticated surfaces
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "multibuy_http_requests_total")
}

func TestStatusEndpoint(t *testing.T) {
	ts := setupTestServer(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, serviceName, resp["service"])
	assert.Equal(t, "jackal-1", resp["chain_id"])
	assert.Contains(t, resp, "metrics")
}

func TestCORSPreflight(t *testing.T) {
	ts := setupTestServer(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/purchase", nil)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), handlers.IdempotencyHeader)
}
