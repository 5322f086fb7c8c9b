package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "jackal-1", cfg.Chain.ChainID)
	assert.Equal(t, "jkl1", cfg.Chain.AddressPrefix)
	assert.Equal(t, 60*time.Second, cfg.Chain.BroadcastTimeout)
	assert.Equal(t, time.Minute, cfg.Price.RefreshInterval)
	assert.Equal(t, 0.083, cfg.Price.FallbackPrice)
	assert.Equal(t, 0.5, cfg.Price.MaxDeviation)
	assert.Equal(t, "jackal-protocol", cfg.Price.TokenID)
	assert.Equal(t, "mongo", cfg.Store.Driver)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9090"
price:
  refresh_interval: 30s
  fallback_price: 0.1
chain:
  address_prefix: jkltest1
store:
  driver: none
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("IDEMPOTENCY_TTL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Price.RefreshInterval)
	assert.Equal(t, 0.1, cfg.Price.FallbackPrice)
	assert.Equal(t, "jkltest1", cfg.Chain.AddressPrefix)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Cache.IdempotencyTTL)
	// untouched keys keep their defaults
	assert.Equal(t, "jackal-1", cfg.Chain.ChainID)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("MalformedDuration", func(t *testing.T) {
		t.Setenv("PRICE_REFRESH_INTERVAL", "soon")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("PostgresWithoutDSN", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "postgres")
		_, err := Load("")
		assert.ErrorContains(t, err, "postgres.dsn")
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
