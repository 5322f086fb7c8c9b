package store

import (
	"context"
	"testing"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshotStore(t *testing.T) (*PriceSnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPriceSnapshotStore(client, "test:price"), mr
}

func TestPriceSnapshotStoreEmpty(t *testing.T) {
	s, _ := newTestSnapshotStore(t)

	snapshot, err := s.LoadPrice(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestPriceSnapshotStoreRoundTrip(t *testing.T) {
	s, mr := newTestSnapshotStore(t)
	ctx := context.Background()
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SavePrice(ctx, models.PriceSnapshot{Price: 0.091, FetchedAt: fetchedAt}))
	assert.True(t, mr.Exists("test:price"))

	snapshot, err := s.LoadPrice(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 0.091, snapshot.Price)
	assert.True(t, fetchedAt.Equal(snapshot.FetchedAt))
}

func TestPriceSnapshotStoreCorrupt(t *testing.T) {
	s, mr := newTestSnapshotStore(t)
	require.NoError(t, mr.Set("test:price", "not json"))

	_, err := s.LoadPrice(context.Background())
	assert.Error(t, err)
}

func TestPriceSnapshotStoreUnavailable(t *testing.T) {
	s, mr := newTestSnapshotStore(t)
	mr.Close()

	_, err := s.LoadPrice(context.Background())
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}
