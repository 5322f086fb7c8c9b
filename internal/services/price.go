package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"
	"github.com/Criptoruim/jackalmultibuy/pkg/metrics"

	"go.uber.org/zap"
)

var (
	// ErrInvalidPrice is returned when the feed answers with a non-positive or non-finite value
	ErrInvalidPrice = errors.New("price feed returned an invalid price")
	// ErrSuspiciousPrice is returned when a fresh reading deviates too far from the cached one
	ErrSuspiciousPrice = errors.New("price feed returned a suspicious price")
)

// PriceService caches the token price and refreshes it from a PriceFeed at most once per interval
type PriceService struct {
	feed         PriceFeed
	snapshots    PriceSnapshotStore
	metrics      *metrics.MetricsCollector
	interval     time.Duration
	maxDeviation float64
	now          func() time.Time

	mu         sync.RWMutex
	price      float64
	lastUpdate time.Time
	lastErr    error
}

// PriceOption customizes a PriceService
type PriceOption func(*PriceService)

// WithSnapshotStore persists accepted prices and allows Restore
func WithSnapshotStore(store PriceSnapshotStore) PriceOption {
	return func(s *PriceService) {
		s.snapshots = store
	}
}

// WithPriceMetrics records refresh results on mc
func WithPriceMetrics(mc *metrics.MetricsCollector) PriceOption {
	return func(s *PriceService) {
		s.metrics = mc
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) PriceOption {
	return func(s *PriceService) {
		s.now = now
	}
}

// NewPriceService creates a PriceService seeded with the configured fallback price
func NewPriceService(feed PriceFeed, cfg *config.PriceConfig, opts ...PriceOption) *PriceService {
	s := &PriceService{
		feed:         feed,
		interval:     cfg.RefreshInterval,
		maxDeviation: cfg.MaxDeviation,
		price:        cfg.FallbackPrice,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetricsCollector()
	}
	return s
}

// Restore seeds the cache from the snapshot store, if one is configured
func (s *PriceService) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	snapshot, err := s.snapshots.LoadPrice(ctx)
	if err != nil {
		return fmt.Errorf("load price snapshot: %w", err)
	}
	if snapshot == nil || !validPrice(snapshot.Price) {
		return nil
	}

	s.mu.Lock()
	s.price = snapshot.Price
	s.lastUpdate = snapshot.FetchedAt
	s.lastErr = nil
	s.mu.Unlock()

	logger.GetLogger().WithContext(ctx).Info("Restored token price from snapshot",
		zap.Float64("price", snapshot.Price),
		zap.Time("fetched_at", snapshot.FetchedAt),
	)
	return nil
}

// GetPrice returns the cached price, refreshing it first when the interval has elapsed.
// It never fails: a failed or rejected refresh leaves the previous price in place.
func (s *PriceService) GetPrice(ctx context.Context) models.PriceReading {
	s.mu.RLock()
	due := s.lastUpdate.IsZero() || s.now().Sub(s.lastUpdate) > s.interval
	s.mu.RUnlock()

	if due {
		s.refresh(ctx)
	}
	return s.reading()
}

// ForceUpdate resets the staleness clock and refreshes unconditionally
func (s *PriceService) ForceUpdate(ctx context.Context) models.PriceReading {
	s.mu.Lock()
	s.lastUpdate = time.Time{}
	s.mu.Unlock()

	s.refresh(ctx)
	return s.reading()
}

func (s *PriceService) reading() models.PriceReading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.PriceReading{
		Price:     s.price,
		FetchedAt: s.lastUpdate,
		Stale:     s.lastErr != nil || s.lastUpdate.IsZero(),
		Err:       s.lastErr,
	}
}

// refresh reads the feed outside the lock and applies the result
func (s *PriceService) refresh(ctx context.Context) {
	log := logger.GetLogger().WithContext(ctx).WithFields(map[string]interface{}{
		"component": "price_service",
	})

	start := time.Now()
	fetched, err := s.feed.FetchUSDPrice(ctx)
	duration := time.Since(start)

	if err == nil && !validPrice(fetched) {
		err = fmt.Errorf("%w: %v", ErrInvalidPrice, fetched)
	}
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		cached := s.price
		s.mu.Unlock()

		log.Error("Failed to fetch token price, keeping cached value",
			zap.Error(err),
			zap.Float64("cached_price", cached),
		)
		s.metrics.RecordPriceRefresh(metrics.PriceFailed, duration, cached)
		return
	}

	now := s.now()

	s.mu.Lock()
	previous := s.price
	if !withinDeviation(previous, fetched, s.maxDeviation) {
		// the read counts as an update even though the value is discarded
		s.lastUpdate = now
		s.lastErr = fmt.Errorf("%w: %v deviates more than %.0f%% from %v", ErrSuspiciousPrice, fetched, s.maxDeviation*100, previous)
		s.mu.Unlock()

		log.Warn("Price change exceeds allowed deviation, keeping cached value",
			zap.Float64("fetched_price", fetched),
			zap.Float64("cached_price", previous),
		)
		s.metrics.RecordPriceRefresh(metrics.PriceRejected, duration, previous)
		return
	}
	s.price = fetched
	s.lastUpdate = now
	s.lastErr = nil
	s.mu.Unlock()

	log.Debug("Token price updated",
		zap.Float64("price", fetched),
		zap.Duration("fetch_duration", duration),
	)
	s.metrics.RecordPriceRefresh(metrics.PriceAccepted, duration, fetched)

	if s.snapshots != nil {
		if err := s.snapshots.SavePrice(ctx, models.PriceSnapshot{Price: fetched, FetchedAt: now}); err != nil {
			log.Warn("Failed to persist price snapshot", zap.Error(err))
		}
	}
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func withinDeviation(previous, fetched, maxDeviation float64) bool {
	if previous <= 0 {
		return true
	}
	return math.Abs(fetched-previous)/previous <= maxDeviation
}
