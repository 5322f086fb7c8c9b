package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthStatus represents the health status of a service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Service      string        `json:"service"`
	Status       HealthStatus  `json:"status"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Pinger is an optional dependency that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker checks MongoDB, optional stores, the price feed and the storage backend
type HealthChecker struct {
	db      *mongo.Database
	indexes map[string][]string
	deps    map[string]Pinger
	price   PriceServiceInterface
	storage StorageServiceInterface
}

// NewHealthChecker creates a checker for db. indexes maps collection names to required index names.
func NewHealthChecker(db *mongo.Database, indexes map[string][]string) *HealthChecker {
	return &HealthChecker{
		db:      db,
		indexes: indexes,
		deps:    make(map[string]Pinger),
	}
}

// WithDependency adds a named store to the detailed report
func (h *HealthChecker) WithDependency(name string, p Pinger) *HealthChecker {
	h.deps[name] = p
	return h
}

// WithPriceService reports on the price feed
func (h *HealthChecker) WithPriceService(p PriceServiceInterface) *HealthChecker {
	h.price = p
	return h
}

// WithStorageService reports on the signer session
func (h *HealthChecker) WithStorageService(s StorageServiceInterface) *HealthChecker {
	h.storage = s
	return h
}

func finish(check *HealthCheck, status HealthStatus, message string) *HealthCheck {
	check.Status = status
	check.Message = message
	check.ResponseTime = time.Since(check.Timestamp)
	return check
}

// CheckDatabase pings MongoDB and runs dbStats
func (h *HealthChecker) CheckDatabase(ctx context.Context) *HealthCheck {
	check := &HealthCheck{Service: "mongodb", Timestamp: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.db.Client().Ping(ctx, nil); err != nil {
		return finish(check, HealthStatusUnhealthy, fmt.Sprintf("ping failed: %v", err))
	}

	var result bson.M
	if err := h.db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&result); err != nil {
		return finish(check, HealthStatusDegraded, fmt.Sprintf("failed to get database stats: %v", err))
	}

	for collection := range h.indexes {
		if _, err := h.db.Collection(collection).EstimatedDocumentCount(ctx); err != nil {
			return finish(check, HealthStatusDegraded, fmt.Sprintf("collection %s not accessible: %v", collection, err))
		}
	}

	return finish(check, HealthStatusHealthy, "all checks passed")
}

// CheckConnectionPool inspects the server's connection counters
func (h *HealthChecker) CheckConnectionPool(ctx context.Context) *HealthCheck {
	check := &HealthCheck{Service: "mongodb_pool", Timestamp: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result bson.M
	if err := h.db.RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).Decode(&result); err != nil {
		return finish(check, HealthStatusUnhealthy, fmt.Sprintf("failed to get server status: %v", err))
	}

	connections, ok := result["connections"].(bson.M)
	if !ok {
		return finish(check, HealthStatusDegraded, "connection stats not available")
	}
	current, currentOk := connections["current"].(int32)
	available, availableOk := connections["available"].(int32)
	if !currentOk || !availableOk {
		return finish(check, HealthStatusDegraded, "unable to parse connection stats")
	}
	if available < 10 {
		return finish(check, HealthStatusDegraded, fmt.Sprintf("low available connections: %d current, %d available", current, available))
	}
	return finish(check, HealthStatusHealthy, fmt.Sprintf("connection pool healthy: %d current, %d available", current, available))
}

// CheckIndexes verifies that required indexes exist
func (h *HealthChecker) CheckIndexes(ctx context.Context) *HealthCheck {
	check := &HealthCheck{Service: "mongodb_indexes", Timestamp: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var missing []string
	for collection, required := range h.indexes {
		cursor, err := h.db.Collection(collection).Indexes().List(ctx)
		if err != nil {
			return finish(check, HealthStatusUnhealthy, fmt.Sprintf("failed to list indexes of %s: %v", collection, err))
		}

		var indexes []bson.M
		if err := cursor.All(ctx, &indexes); err != nil {
			return finish(check, HealthStatusUnhealthy, fmt.Sprintf("failed to decode indexes of %s: %v", collection, err))
		}

		present := make(map[string]bool, len(indexes))
		for _, index := range indexes {
			if name, ok := index["name"].(string); ok {
				present[name] = true
			}
		}
		for _, name := range required {
			if !present[name] {
				missing = append(missing, collection+"."+name)
			}
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return finish(check, HealthStatusDegraded, fmt.Sprintf("missing indexes: %v", missing))
	}
	return finish(check, HealthStatusHealthy, "all required indexes present")
}

// CheckDependency pings an optional store
func (h *HealthChecker) CheckDependency(ctx context.Context, name string, p Pinger) *HealthCheck {
	check := &HealthCheck{Service: name, Timestamp: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return finish(check, HealthStatusUnhealthy, fmt.Sprintf("ping failed: %v", err))
	}
	return finish(check, HealthStatusHealthy, "reachable")
}

// CheckPriceFeed reports degraded when the served price is not fresh
func (h *HealthChecker) CheckPriceFeed(ctx context.Context) *HealthCheck {
	check := &HealthCheck{Service: "price_feed", Timestamp: time.Now()}
	if h.price == nil {
		return finish(check, HealthStatusDegraded, "price service not configured")
	}

	reading := h.price.GetPrice(ctx)
	if reading.Stale {
		msg := "serving fallback price"
		if reading.Err != nil {
			msg = fmt.Sprintf("serving cached price %.4f: %v", reading.Price, reading.Err)
		}
		return finish(check, HealthStatusDegraded, msg)
	}
	return finish(check, HealthStatusHealthy, fmt.Sprintf("price %.4f fetched at %s", reading.Price, reading.FetchedAt.Format(time.RFC3339)))
}

// CheckStorageBackend reports whether a signer session is established
func (h *HealthChecker) CheckStorageBackend(_ context.Context) *HealthCheck {
	check := &HealthCheck{Service: "storage_backend", Timestamp: time.Now()}
	if h.storage == nil {
		return finish(check, HealthStatusDegraded, "storage service not configured")
	}
	if address := h.storage.ConnectedAddress(); address != "" {
		return finish(check, HealthStatusHealthy, "session established for "+address)
	}
	// the session is created on first use
	return finish(check, HealthStatusDegraded, "no signer session yet")
}

// GetDetailedHealth returns comprehensive health information
func (h *HealthChecker) GetDetailedHealth(ctx context.Context) map[string]*HealthCheck {
	checks := map[string]*HealthCheck{
		"connectivity":    h.CheckDatabase(ctx),
		"connection_pool": h.CheckConnectionPool(ctx),
		"indexes":         h.CheckIndexes(ctx),
	}
	for name, p := range h.deps {
		checks[name] = h.CheckDependency(ctx, name, p)
	}
	if h.price != nil {
		checks["price_feed"] = h.CheckPriceFeed(ctx)
	}
	if h.storage != nil {
		checks["storage_backend"] = h.CheckStorageBackend(ctx)
	}
	return checks
}
