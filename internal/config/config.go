package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Store     StoreConfig     `yaml:"store"`
	Price     PriceConfig     `yaml:"price"`
	Chain     ChainConfig     `yaml:"chain"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI                 string        `yaml:"uri"`
	Database            string        `yaml:"database"`
	APIKeyCollection    string        `yaml:"api_key_collection"`
	PurchaseCollection  string        `yaml:"purchase_collection"`
	MigrationCollection string        `yaml:"migration_collection"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	MaxPoolSize         uint64        `yaml:"max_pool_size"`
}

// PostgresConfig is used when purchase records are kept in Postgres
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the optional price snapshot store
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PriceKey string `yaml:"price_key"`
}

// StoreConfig selects where purchase records are written: mongo, postgres or none
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// PriceConfig configures the token price feed and cache
type PriceConfig struct {
	FeedURL         string        `yaml:"feed_url"`
	TokenID         string        `yaml:"token_id"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	FallbackPrice   float64       `yaml:"fallback_price"`
	MaxDeviation    float64       `yaml:"max_deviation"`
}

// ChainConfig describes the Jackal network the wallet session connects to
type ChainConfig struct {
	ChainID          string        `yaml:"chain_id"`
	ChainName        string        `yaml:"chain_name"`
	RPC              string        `yaml:"rpc"`
	REST             string        `yaml:"rest"`
	AddressPrefix    string        `yaml:"address_prefix"`
	Denom            string        `yaml:"denom"`
	MinimalDenom     string        `yaml:"minimal_denom"`
	Decimals         int           `yaml:"decimals"`
	SelectedWallet   string        `yaml:"selected_wallet"`
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout"`
}

// GatewayConfig points at the wallet bridge that signs and broadcasts
type GatewayConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig holds idempotent purchase replay settings
type CacheConfig struct {
	IdempotencyTTL  time.Duration `yaml:"idempotency_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	WindowSize        time.Duration `yaml:"window_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Environment string   `yaml:"environment"`
	OutputPaths []string `yaml:"output_paths"`
}

// Default returns the mainnet configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:                 "mongodb://localhost:27017",
			Database:            "jackal_multibuy",
			APIKeyCollection:    "api_keys",
			PurchaseCollection:  "purchases",
			MigrationCollection: "migrations",
			ConnectTimeout:      10 * time.Second,
			MaxPoolSize:         50,
		},
		Redis: RedisConfig{
			PriceKey: "jackal:price:jkl_usd",
		},
		Store: StoreConfig{
			Driver: "mongo",
		},
		Price: PriceConfig{
			FeedURL:         "https://api.coingecko.com/api/v3",
			TokenID:         "jackal-protocol",
			RefreshInterval: time.Minute,
			RequestTimeout:  10 * time.Second,
			FallbackPrice:   0.083,
			MaxDeviation:    0.5,
		},
		Chain: ChainConfig{
			ChainID:          "jackal-1",
			ChainName:        "Jackal Mainnet",
			RPC:              "https://rpc.jackalprotocol.com",
			REST:             "https://api.jackalprotocol.com",
			AddressPrefix:    "jkl1",
			Denom:            "JKL",
			MinimalDenom:     "ujkl",
			Decimals:         6,
			SelectedWallet:   "keplr",
			BroadcastTimeout: 60 * time.Second,
		},
		Gateway: GatewayConfig{
			URL:     "http://localhost:8787",
			Timeout: 90 * time.Second,
		},
		Cache: CacheConfig{
			IdempotencyTTL:  10 * time.Minute,
			CleanupInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			WindowSize:        time.Minute,
			CleanupInterval:   5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Environment: "development",
			OutputPaths: []string{"stdout"},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads configuration from CONFIG_FILE and the environment
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Price.FallbackPrice <= 0 {
		return errors.New("price.fallback_price must be positive")
	}
	if c.Price.MaxDeviation <= 0 {
		return errors.New("price.max_deviation must be positive")
	}
	if c.Price.RefreshInterval <= 0 {
		return errors.New("price.refresh_interval must be positive")
	}
	if c.Chain.AddressPrefix == "" {
		return errors.New("chain.address_prefix is required")
	}
	if c.Chain.BroadcastTimeout <= 0 {
		return errors.New("chain.broadcast_timeout must be positive")
	}
	switch c.Store.Driver {
	case "mongo", "none":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required when store.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	return nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	overrideString("SERVER_PORT", &cfg.Server.Port)
	overrideString("SERVER_HOST", &cfg.Server.Host)
	overrideString("MONGODB_URI", &cfg.MongoDB.URI)
	overrideString("MONGODB_DATABASE", &cfg.MongoDB.Database)
	overrideString("MONGODB_APIKEY_COLLECTION", &cfg.MongoDB.APIKeyCollection)
	overrideString("MONGODB_PURCHASE_COLLECTION", &cfg.MongoDB.PurchaseCollection)
	overrideString("POSTGRES_DSN", &cfg.Postgres.DSN)
	overrideString("REDIS_ADDR", &cfg.Redis.Addr)
	overrideString("REDIS_PASSWORD", &cfg.Redis.Password)
	overrideString("STORE_DRIVER", &cfg.Store.Driver)
	overrideString("PRICE_FEED_URL", &cfg.Price.FeedURL)
	overrideString("PRICE_TOKEN_ID", &cfg.Price.TokenID)
	overrideString("CHAIN_ID", &cfg.Chain.ChainID)
	overrideString("CHAIN_RPC", &cfg.Chain.RPC)
	overrideString("CHAIN_REST", &cfg.Chain.REST)
	overrideString("CHAIN_ADDRESS_PREFIX", &cfg.Chain.AddressPrefix)
	overrideString("GATEWAY_URL", &cfg.Gateway.URL)
	overrideString("GATEWAY_TOKEN", &cfg.Gateway.Token)
	overrideString("LOG_LEVEL", &cfg.Logging.Level)
	overrideString("LOG_ENVIRONMENT", &cfg.Logging.Environment)

	if v := os.Getenv("LOG_OUTPUT_PATHS"); v != "" {
		cfg.Logging.OutputPaths = strings.Split(v, ",")
	}

	durations := map[string]*time.Duration{
		"SERVER_READ_TIMEOUT":     &cfg.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":    &cfg.Server.WriteTimeout,
		"SERVER_IDLE_TIMEOUT":     &cfg.Server.IdleTimeout,
		"MONGODB_CONNECT_TIMEOUT": &cfg.MongoDB.ConnectTimeout,
		"PRICE_REFRESH_INTERVAL":  &cfg.Price.RefreshInterval,
		"PRICE_REQUEST_TIMEOUT":   &cfg.Price.RequestTimeout,
		"CHAIN_BROADCAST_TIMEOUT": &cfg.Chain.BroadcastTimeout,
		"GATEWAY_TIMEOUT":         &cfg.Gateway.Timeout,
		"IDEMPOTENCY_TTL":         &cfg.Cache.IdempotencyTTL,
		"RATE_LIMIT_WINDOW_SIZE":  &cfg.RateLimit.WindowSize,
	}
	for key, target := range durations {
		if err := overrideDuration(key, target); err != nil {
			return err
		}
	}

	if err := overrideInt("RATE_LIMIT_REQUESTS_PER_MINUTE", &cfg.RateLimit.RequestsPerMinute); err != nil {
		return err
	}
	if err := overrideInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}
	if err := overrideFloat("PRICE_FALLBACK", &cfg.Price.FallbackPrice); err != nil {
		return err
	}
	if v := os.Getenv("MONGODB_MAX_POOL_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse MONGODB_MAX_POOL_SIZE: %w", err)
		}
		cfg.MongoDB.MaxPoolSize = n
	}
	return nil
}

func overrideString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*target = d
	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideFloat(key string, target *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*target = f
	return nil
}
