package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/internal/store"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	var (
		initDB      = flag.Bool("init", false, "Initialize database with collections and indexes")
		seedData    = flag.Bool("seed", false, "Seed database with test API keys")
		migrate     = flag.Bool("migrate", false, "Run database migrations")
		rollback    = flag.Bool("rollback", false, "Rollback last migration")
		healthCheck = flag.Bool("health", false, "Run database health check")
		all         = flag.Bool("all", false, "Run health, migrate, init and seed (full setup)")
	)
	flag.Parse()

	if !*initDB && !*seedData && !*migrate && !*rollback && !*healthCheck && !*all {
		fmt.Println("Database Setup Utility")
		fmt.Println("Usage:")
		fmt.Println("  -init      Initialize database with collections and indexes")
		fmt.Println("  -seed      Seed database with test API keys")
		fmt.Println("  -migrate   Run database migrations (MongoDB, and Postgres when store.driver is postgres)")
		fmt.Println("  -rollback  Rollback last MongoDB migration")
		fmt.Println("  -health    Run database health check")
		fmt.Println("  -all       Run full setup (health + migrate + init + seed)")
		fmt.Println()
		fmt.Println("Environment Variables:")
		fmt.Println("  CONFIG_FILE               YAML configuration file")
		fmt.Println("  MONGODB_URI               MongoDB connection string")
		fmt.Println("  MONGODB_DATABASE          Database name")
		fmt.Println("  POSTGRES_DSN              Postgres connection string")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&logger.Config{
		Level:       cfg.Logging.Level,
		Environment: "development",
		OutputPaths: []string{"stdout"},
		Service:     "jackal-multibuy-dbsetup",
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	setup, err := NewDatabaseSetup(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer setup.Close()

	steps := []struct {
		enabled bool
		name    string
		run     func(context.Context) error
	}{
		{*healthCheck || *all, "health check", setup.HealthCheck},
		{*migrate || *all, "migrations", setup.Migrate},
		{*rollback, "rollback", setup.Rollback},
		{*initDB || *all, "initialization", setup.Initialize},
		{*seedData || *all, "seeding", setup.Seed},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := step.run(ctx); err != nil {
			log.Fatal("Database setup step failed", zap.String("step", step.name), zap.Error(err))
		}
	}

	log.Info("Database setup completed successfully")
}

// DatabaseSetup handles database initialization, migrations and seeding
type DatabaseSetup struct {
	client *mongo.Client
	db     *mongo.Database
	config *config.Config
}

// NewDatabaseSetup connects to the configured MongoDB
func NewDatabaseSetup(ctx context.Context, cfg *config.Config) (*DatabaseSetup, error) {
	client, err := store.ConnectMongo(ctx, &cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	return &DatabaseSetup{
		client: client,
		db:     client.Database(cfg.MongoDB.Database),
		config: cfg,
	}, nil
}

// HealthCheck runs the same database checks the server reports
func (s *DatabaseSetup) HealthCheck(ctx context.Context) error {
	log := logger.GetLogger()
	log.Info("Running database health check")

	checker := services.NewHealthChecker(s.db, map[string][]string{
		s.config.MongoDB.APIKeyCollection: store.IndexNames(store.APIKeyIndexes()),
	})
	checks := []*services.HealthCheck{
		checker.CheckDatabase(ctx),
		checker.CheckConnectionPool(ctx),
	}

	var failed error
	for _, check := range checks {
		fields := []zap.Field{
			zap.String("service", check.Service),
			zap.String("status", string(check.Status)),
			zap.Duration("response_time", check.ResponseTime),
		}
		if check.Message != "" {
			fields = append(fields, zap.String("message", check.Message))
		}
		if check.Status == services.HealthStatusUnhealthy {
			log.Error("Health check failed", fields...)
			failed = fmt.Errorf("health check failed for %s", check.Service)
			continue
		}
		log.Info("Health check passed", fields...)
	}
	return failed
}

// Migrate applies pending MongoDB migrations and the Postgres schema when it is the record store
func (s *DatabaseSetup) Migrate(ctx context.Context) error {
	if err := store.NewMigrator(s.db, &s.config.MongoDB).Up(ctx); err != nil {
		return err
	}

	if s.config.Store.Driver != "postgres" {
		return nil
	}
	repo, err := store.NewPostgresPurchaseRepository(ctx, s.config.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate purchase schema: %w", err)
	}
	logger.GetLogger().Info("Postgres purchase schema is up to date")
	return nil
}

// Rollback reverts the last MongoDB migration
func (s *DatabaseSetup) Rollback(ctx context.Context) error {
	return store.NewMigrator(s.db, &s.config.MongoDB).Down(ctx)
}

// Initialize creates every index the server checks for. It is idempotent.
func (s *DatabaseSetup) Initialize(ctx context.Context) error {
	log := logger.GetLogger()

	collections := map[string][]mongo.IndexModel{
		s.config.MongoDB.APIKeyCollection:   store.APIKeyIndexes(),
		s.config.MongoDB.PurchaseCollection: store.PurchaseIndexes(),
	}
	for name, indexes := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
		log.Info("Indexes ready",
			zap.String("collection", name),
			zap.Strings("indexes", store.IndexNames(indexes)),
		)
	}
	return nil
}

// Seed creates sample API keys when the collection is empty
func (s *DatabaseSetup) Seed(ctx context.Context) error {
	log := logger.GetLogger()
	collection := s.db.Collection(s.config.MongoDB.APIKeyCollection)

	count, err := collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count existing documents: %w", err)
	}
	if count > 0 {
		log.Info("API keys already present, skipping seed data", zap.Int64("count", count))
		return nil
	}

	now := time.Now()
	keys := []models.APIKey{
		{Key: "test-purchase-key", Name: "Test Purchase Key", Active: true, CanPurchase: true, CreatedAt: now},
		{Key: "test-quote-key", Name: "Test Quote Key", Active: true, CreatedAt: now},
		{Key: "inactive-test-key", Name: "Inactive Test Key", Active: false, CanPurchase: true, CreatedAt: now},
	}
	for i := 0; i < 3; i++ {
		randomKey, err := generateRandomAPIKey()
		if err != nil {
			return fmt.Errorf("failed to generate random API key: %w", err)
		}
		keys = append(keys, models.APIKey{
			Key:       randomKey,
			Name:      fmt.Sprintf("Generated Quote Key %d", i+1),
			Active:    true,
			CreatedAt: now,
		})
	}

	documents := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		documents = append(documents, k)
	}
	result, err := collection.InsertMany(ctx, documents)
	if err != nil {
		return fmt.Errorf("failed to insert test API keys: %w", err)
	}

	log.Info("Created test API keys", zap.Int("count", len(result.InsertedIDs)))
	for _, k := range keys {
		log.Info("Test API key",
			zap.String("key", k.Key),
			zap.String("name", k.Name),
			zap.Bool("active", k.Active),
			zap.Bool("can_purchase", k.CanPurchase),
		)
	}
	return nil
}

// generateRandomAPIKey generates a cryptographically secure random API key
func generateRandomAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Close closes the database connection
func (s *DatabaseSetup) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}
