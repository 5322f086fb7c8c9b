package services

import (
	"context"
	"errors"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrInactiveAPIKey = errors.New("API key is inactive")
	ErrDatabaseError  = errors.New("database error")
)

// AuthService handles API key authentication using MongoDB
type AuthService struct {
	collection *mongo.Collection
}

// NewAuthService creates an authentication service on the API key collection of db
func NewAuthService(db *mongo.Database, collection string) *AuthService {
	return &AuthService{collection: db.Collection(collection)}
}

// ValidateAPIKey validates an API key against the MongoDB database
func (a *AuthService) ValidateAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	if key == "" {
		return nil, ErrInvalidAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var apiKey models.APIKey
	err := a.collection.FindOne(ctx, bson.M{"key": key}).Decode(&apiKey)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidAPIKey
		}
		logger.GetLogger().WithContext(ctx).Error("API key lookup failed", zap.Error(err))
		return nil, ErrDatabaseError
	}

	if !apiKey.Active {
		return nil, ErrInactiveAPIKey
	}

	go a.updateLastUsed(apiKey.ID)

	return &apiKey, nil
}

// updateLastUsed updates the last_used timestamp for an API key
func (a *AuthService) updateLastUsed(id primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"last_used": time.Now().UTC()}}
	if _, err := a.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		logger.GetLogger().Debug("Failed to update API key last_used", zap.Error(err))
	}
}
