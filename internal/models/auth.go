package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// APIKey is a caller credential stored in MongoDB.
// Keys without CanPurchase may only read prices and quotes.
type APIKey struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Key         string             `bson:"key" json:"-"`
	Name        string             `bson:"name" json:"name"`
	Active      bool               `bson:"active" json:"active"`
	CanPurchase bool               `bson:"can_purchase" json:"can_purchase"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	LastUsed    *time.Time         `bson:"last_used,omitempty" json:"last_used,omitempty"`
}
