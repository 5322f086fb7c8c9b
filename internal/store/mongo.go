package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo opens a pooled MongoDB client and verifies it with a ping
func ConnectMongo(ctx context.Context, cfg *config.MongoDBConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.URI)

	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	clientOptions.SetMinPoolSize(cfg.MaxPoolSize / 4)
	clientOptions.SetMaxConnIdleTime(30 * time.Minute)
	clientOptions.SetMaxConnecting(cfg.MaxPoolSize / 2)

	clientOptions.SetConnectTimeout(cfg.ConnectTimeout)
	clientOptions.SetSocketTimeout(30 * time.Second)
	clientOptions.SetServerSelectionTimeout(5 * time.Second)
	clientOptions.SetHeartbeatInterval(10 * time.Second)

	clientOptions.SetCompressors([]string{"snappy", "zlib", "zstd"})

	// purchase records are read back right after being written
	clientOptions.SetReadPreference(readpref.PrimaryPreferred())
	clientOptions.SetRetryWrites(true)
	clientOptions.SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// APIKeyIndexes are the indexes the API key collection needs
func APIKeyIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("key_1"),
		},
		{
			Keys:    bson.D{{Key: "active", Value: 1}},
			Options: options.Index().SetName("active_1"),
		},
		{
			Keys:    bson.D{{Key: "key", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetName("key_1_active_1"),
		},
	}
}

// PurchaseIndexes are the indexes the purchase collection needs
func PurchaseIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "requested_by", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("requested_by_1_created_at_-1"),
		},
		{
			Keys:    bson.D{{Key: "outcomes.wallet", Value: 1}},
			Options: options.Index().SetName("outcomes.wallet_1"),
		},
	}
}

// IndexNames lists the names of models, for health checks
func IndexNames(models []mongo.IndexModel) []string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		if m.Options != nil && m.Options.Name != nil {
			names = append(names, *m.Options.Name)
		}
	}
	return names
}

// MongoPurchaseRepository keeps purchase records in a MongoDB collection
type MongoPurchaseRepository struct {
	collection *mongo.Collection
}

// NewMongoPurchaseRepository creates a repository on db
func NewMongoPurchaseRepository(db *mongo.Database, collection string) *MongoPurchaseRepository {
	return &MongoPurchaseRepository{collection: db.Collection(collection)}
}

// SavePurchase inserts or replaces the record for its batch
func (r *MongoPurchaseRepository) SavePurchase(ctx context.Context, record *models.PurchaseRecord) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": record.BatchID},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save purchase %s: %w", record.BatchID, err)
	}
	return nil
}

// GetPurchase loads the record of a batch
func (r *MongoPurchaseRepository) GetPurchase(ctx context.Context, batchID string) (*models.PurchaseRecord, error) {
	var record models.PurchaseRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": batchID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("get purchase %s: %w", batchID, err)
	}
	return &record, nil
}
