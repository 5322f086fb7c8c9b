package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Migration is one versioned change to the MongoDB schema
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, db *mongo.Database) error
	Down        func(ctx context.Context, db *mongo.Database) error
}

// Migrator applies and rolls back migrations, tracking the version in its own collection
type Migrator struct {
	db         *mongo.Database
	versions   *mongo.Collection
	migrations []Migration
}

// NewMigrator creates a migrator with the service's migrations
func NewMigrator(db *mongo.Database, cfg *config.MongoDBConfig) *Migrator {
	return &Migrator{
		db:         db,
		versions:   db.Collection(cfg.MigrationCollection),
		migrations: Migrations(cfg),
	}
}

// Migrations lists the schema history in version order
func Migrations(cfg *config.MongoDBConfig) []Migration {
	apiKeys := cfg.APIKeyCollection
	purchases := cfg.PurchaseCollection

	return []Migration{
		{
			Version:     1,
			Description: "Create API keys collection with unique key index",
			Up: func(ctx context.Context, db *mongo.Database) error {
				return createIndexes(ctx, db.Collection(apiKeys), APIKeyIndexes()[:1])
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				return db.Collection(apiKeys).Drop(ctx)
			},
		},
		{
			Version:     2,
			Description: "Default can_purchase to false on existing API keys",
			Up: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(apiKeys).UpdateMany(ctx,
					bson.M{"can_purchase": bson.M{"$exists": false}},
					bson.M{"$set": bson.M{"can_purchase": false}},
				)
				return err
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection(apiKeys).UpdateMany(ctx, bson.M{}, bson.M{"$unset": bson.M{"can_purchase": ""}})
				return err
			},
		},
		{
			Version:     3,
			Description: "Add API key lookup indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				return createIndexes(ctx, db.Collection(apiKeys), APIKeyIndexes()[1:])
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				return dropIndexes(ctx, db.Collection(apiKeys), IndexNames(APIKeyIndexes()[1:]))
			},
		},
		{
			Version:     4,
			Description: "Create purchase record indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				return createIndexes(ctx, db.Collection(purchases), PurchaseIndexes())
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				return dropIndexes(ctx, db.Collection(purchases), IndexNames(PurchaseIndexes()))
			},
		},
	}
}

// Pending returns the migrations newer than current, in order
func Pending(migrations []Migration, current int) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending
}

// Find returns the migration with version, if any
func Find(migrations []Migration, version int) (Migration, bool) {
	for _, m := range migrations {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}

func createIndexes(ctx context.Context, coll *mongo.Collection, indexes []mongo.IndexModel) error {
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
	}
	return nil
}

func dropIndexes(ctx context.Context, coll *mongo.Collection, names []string) error {
	for _, name := range names {
		if _, err := coll.Indexes().DropOne(ctx, name); err != nil {
			logger.GetLogger().Warn("Failed to drop index",
				zap.String("collection", coll.Name()),
				zap.String("index", name),
				zap.Error(err),
			)
		}
	}
	return nil
}

// CurrentVersion returns the last applied migration, 0 when none
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var result struct {
		Version int `bson:"version"`
	}
	err := m.versions.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return result.Version, nil
}

// Up runs all pending migrations
func (m *Migrator) Up(ctx context.Context) error {
	log := logger.GetLogger().WithContext(ctx)

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	log.Info("Current migration version", zap.Int("version", current))

	for _, migration := range Pending(m.migrations, current) {
		log.Info("Running migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description),
		)

		if err := migration.Up(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		doc := bson.M{"version": migration.Version, "applied_at": time.Now().UTC()}
		if _, err := m.versions.InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	log.Info("All migrations applied")
	return nil
}

// Down rolls back the last applied migration
func (m *Migrator) Down(ctx context.Context) error {
	log := logger.GetLogger().WithContext(ctx)

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		log.Info("No migrations to roll back")
		return nil
	}

	migration, ok := Find(m.migrations, current)
	if !ok {
		return fmt.Errorf("migration %d not found", current)
	}

	log.Info("Rolling back migration",
		zap.Int("version", migration.Version),
		zap.String("description", migration.Description),
	)

	if err := migration.Down(ctx, m.db); err != nil {
		return fmt.Errorf("rollback of migration %d failed: %w", migration.Version, err)
	}
	if _, err := m.versions.DeleteOne(ctx, bson.M{"version": current}); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}
	return nil
}
