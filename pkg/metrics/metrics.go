package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// PriceRefreshResult labels the outcome of one price feed read
type PriceRefreshResult string

const (
	PriceAccepted PriceRefreshResult = "accepted"
	PriceRejected PriceRefreshResult = "rejected"
	PriceFailed   PriceRefreshResult = "failed"
)

// Metrics is a point-in-time copy of the collected counters
type Metrics struct {
	// HTTP
	TotalRequests       int64         `json:"total_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	ActiveRequests      int64         `json:"active_requests"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	MinResponseTime     time.Duration `json:"min_response_time"`
	MaxResponseTime     time.Duration `json:"max_response_time"`

	// Purchases
	PurchaseBatches   int64 `json:"purchase_batches"`
	WalletsSucceeded  int64 `json:"wallets_succeeded"`
	WalletsFailed     int64 `json:"wallets_failed"`
	BroadcastTimeouts int64 `json:"broadcast_timeouts"`
	IdempotentReplays int64 `json:"idempotent_replays"`

	// Backend session
	SessionSetups        int64 `json:"session_setups"`
	SessionSetupFailures int64 `json:"session_setup_failures"`

	// Price feed
	PriceAccepted    int64         `json:"price_accepted"`
	PriceRejected    int64         `json:"price_rejected"`
	PriceFailures    int64         `json:"price_failures"`
	AverageFetchTime time.Duration `json:"average_fetch_time"`
}

// MetricsCollector provides thread-safe metrics collection.
// Every Record call also feeds the matching Prometheus instrument.
type MetricsCollector struct {
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	activeRequests     int64

	purchaseBatches   int64
	walletsSucceeded  int64
	walletsFailed     int64
	broadcastTimeouts int64
	idempotentReplays int64

	sessionSetups        int64
	sessionSetupFailures int64

	priceAccepted int64
	priceRejected int64
	priceFailures int64

	mu                sync.RWMutex
	completedRequests int64
	totalResponseTime time.Duration
	minResponseTime   time.Duration
	maxResponseTime   time.Duration
	priceFetches      int64
	totalFetchTime    time.Duration
	startTime         time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		minResponseTime: maxDuration,
		startTime:       time.Now(),
	}
}

const maxDuration = time.Duration(^uint64(0) >> 1)

// RecordRequest records a new HTTP request
func (mc *MetricsCollector) RecordRequest() {
	atomic.AddInt64(&mc.totalRequests, 1)
	atomic.AddInt64(&mc.activeRequests, 1)
}

// RecordRequestComplete records HTTP request completion
func (mc *MetricsCollector) RecordRequestComplete(method, route string, status int, duration time.Duration) {
	atomic.AddInt64(&mc.activeRequests, -1)
	if status < 400 {
		atomic.AddInt64(&mc.successfulRequests, 1)
	} else {
		atomic.AddInt64(&mc.failedRequests, 1)
	}
	observeHTTP(method, route, status, duration)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.completedRequests++
	mc.totalResponseTime += duration
	if duration < mc.minResponseTime {
		mc.minResponseTime = duration
	}
	if duration > mc.maxResponseTime {
		mc.maxResponseTime = duration
	}
}

// RecordPurchaseBatch records the per-wallet results of one purchase call
func (mc *MetricsCollector) RecordPurchaseBatch(succeeded, failed int) {
	atomic.AddInt64(&mc.purchaseBatches, 1)
	atomic.AddInt64(&mc.walletsSucceeded, int64(succeeded))
	atomic.AddInt64(&mc.walletsFailed, int64(failed))
	purchaseOutcomesTotal.WithLabelValues("success").Add(float64(succeeded))
	purchaseOutcomesTotal.WithLabelValues("failure").Add(float64(failed))
}

// RecordBroadcast records how long one broadcast-and-confirm took
func (mc *MetricsCollector) RecordBroadcast(duration time.Duration, timedOut bool) {
	if timedOut {
		atomic.AddInt64(&mc.broadcastTimeouts, 1)
	}
	broadcastDuration.Observe(duration.Seconds())
}

// RecordIdempotentReplay records a purchase response served from the replay cache
func (mc *MetricsCollector) RecordIdempotentReplay() {
	atomic.AddInt64(&mc.idempotentReplays, 1)
	idempotentReplaysTotal.Inc()
}

// RecordSessionSetup records a backend session setup attempt
func (mc *MetricsCollector) RecordSessionSetup(success bool) {
	if success {
		atomic.AddInt64(&mc.sessionSetups, 1)
		sessionSetupTotal.WithLabelValues("success").Inc()
		return
	}
	atomic.AddInt64(&mc.sessionSetupFailures, 1)
	sessionSetupTotal.WithLabelValues("failure").Inc()
}

// RecordPriceRefresh records one feed read and, when accepted, the new price
func (mc *MetricsCollector) RecordPriceRefresh(result PriceRefreshResult, duration time.Duration, price float64) {
	switch result {
	case PriceAccepted:
		atomic.AddInt64(&mc.priceAccepted, 1)
		tokenPriceUSD.Set(price)
	case PriceRejected:
		atomic.AddInt64(&mc.priceRejected, 1)
	default:
		atomic.AddInt64(&mc.priceFailures, 1)
	}
	priceRefreshTotal.WithLabelValues(string(result)).Inc()

	mc.mu.Lock()
	mc.priceFetches++
	mc.totalFetchTime += duration
	mc.mu.Unlock()
}

// GetMetrics returns a copy of current metrics
func (mc *MetricsCollector) GetMetrics() *Metrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m := &Metrics{
		TotalRequests:        atomic.LoadInt64(&mc.totalRequests),
		SuccessfulRequests:   atomic.LoadInt64(&mc.successfulRequests),
		FailedRequests:       atomic.LoadInt64(&mc.failedRequests),
		ActiveRequests:       atomic.LoadInt64(&mc.activeRequests),
		MaxResponseTime:      mc.maxResponseTime,
		PurchaseBatches:      atomic.LoadInt64(&mc.purchaseBatches),
		WalletsSucceeded:     atomic.LoadInt64(&mc.walletsSucceeded),
		WalletsFailed:        atomic.LoadInt64(&mc.walletsFailed),
		BroadcastTimeouts:    atomic.LoadInt64(&mc.broadcastTimeouts),
		IdempotentReplays:    atomic.LoadInt64(&mc.idempotentReplays),
		SessionSetups:        atomic.LoadInt64(&mc.sessionSetups),
		SessionSetupFailures: atomic.LoadInt64(&mc.sessionSetupFailures),
		PriceAccepted:        atomic.LoadInt64(&mc.priceAccepted),
		PriceRejected:        atomic.LoadInt64(&mc.priceRejected),
		PriceFailures:        atomic.LoadInt64(&mc.priceFailures),
	}
	if mc.completedRequests > 0 {
		m.AverageResponseTime = mc.totalResponseTime / time.Duration(mc.completedRequests)
		m.MinResponseTime = mc.minResponseTime
	}
	if mc.priceFetches > 0 {
		m.AverageFetchTime = mc.totalFetchTime / time.Duration(mc.priceFetches)
	}
	return m
}

// GetUptime returns the uptime since metrics collection started
func (mc *MetricsCollector) GetUptime() time.Duration {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return time.Since(mc.startTime)
}

// GetWalletSuccessRate returns the share of target wallets that received a plan, in percent
func (mc *MetricsCollector) GetWalletSuccessRate() float64 {
	succeeded := atomic.LoadInt64(&mc.walletsSucceeded)
	total := succeeded + atomic.LoadInt64(&mc.walletsFailed)
	if total == 0 {
		return 0
	}
	return float64(succeeded) / float64(total) * 100.0
}

// GetPriceAcceptRate returns the share of feed reads that were committed, in percent
func (mc *MetricsCollector) GetPriceAcceptRate() float64 {
	accepted := atomic.LoadInt64(&mc.priceAccepted)
	total := accepted + atomic.LoadInt64(&mc.priceRejected) + atomic.LoadInt64(&mc.priceFailures)
	if total == 0 {
		return 0
	}
	return float64(accepted) / float64(total) * 100.0
}

// Reset resets all in-process counters. Prometheus instruments are cumulative and left alone.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, counter := range []*int64{
		&mc.totalRequests, &mc.successfulRequests, &mc.failedRequests, &mc.activeRequests,
		&mc.purchaseBatches, &mc.walletsSucceeded, &mc.walletsFailed, &mc.broadcastTimeouts,
		&mc.idempotentReplays, &mc.sessionSetups, &mc.sessionSetupFailures,
		&mc.priceAccepted, &mc.priceRejected, &mc.priceFailures,
	} {
		atomic.StoreInt64(counter, 0)
	}

	mc.completedRequests = 0
	mc.totalResponseTime = 0
	mc.minResponseTime = maxDuration
	mc.maxResponseTime = 0
	mc.priceFetches = 0
	mc.totalFetchTime = 0
	mc.startTime = time.Now()
}
