package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/internal/models"

	goredis "github.com/redis/go-redis/v9"
)

// PriceSnapshotStore keeps the last accepted token price in Redis
type PriceSnapshotStore struct {
	client *goredis.Client
	key    string
}

// NewRedisClient creates a client for cfg
func NewRedisClient(cfg *config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewPriceSnapshotStore stores snapshots under key
func NewPriceSnapshotStore(client *goredis.Client, key string) *PriceSnapshotStore {
	return &PriceSnapshotStore{client: client, key: key}
}

// LoadPrice returns nil, nil when no snapshot exists
func (s *PriceSnapshotStore) LoadPrice(ctx context.Context) (*models.PriceSnapshot, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var snapshot models.PriceSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode price snapshot: %w", err)
	}
	return &snapshot, nil
}

// SavePrice overwrites the snapshot
func (s *PriceSnapshotStore) SavePrice(ctx context.Context, snapshot models.PriceSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode price snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Ping checks the connection
func (s *PriceSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
