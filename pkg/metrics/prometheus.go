package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multibuy_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "multibuy_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"method", "endpoint"})

	purchaseOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multibuy_purchase_outcomes_total",
		Help: "Per-wallet storage plan purchase outcomes",
	}, []string{"result"})

	broadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "multibuy_broadcast_duration_seconds",
		Help:    "Time from broadcast to confirmation or timeout",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60},
	})

	idempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multibuy_idempotent_replays_total",
		Help: "Purchase responses replayed for a repeated Idempotency-Key",
	})

	sessionSetupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multibuy_backend_session_setup_total",
		Help: "Storage backend session setup attempts",
	}, []string{"result"})

	priceRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multibuy_price_refresh_total",
		Help: "Token price feed reads, labeled accepted, rejected or failed",
	}, []string{"result"})

	tokenPriceUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "multibuy_token_price_usd",
		Help: "Last accepted payment token price in USD",
	})
)

func observeHTTP(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
