package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/internal/handlers"
	"github.com/Criptoruim/jackalmultibuy/internal/middleware"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/internal/store"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"
	"github.com/Criptoruim/jackalmultibuy/pkg/metrics"
	"github.com/Criptoruim/jackalmultibuy/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	serviceName = "jackal-multibuy"
	version     = "1.0.0"

	slowRequestThreshold = 5 * time.Second
	maxRequestBodyBytes  = 1 << 20
)

// Server represents the main application server
type Server struct {
	httpServer      *http.Server
	config          *config.Config
	mongoClient     *mongo.Client
	metrics         *metrics.MetricsCollector
	priceService    *services.PriceService
	storageService  *services.StorageService
	purchaseHandler *handlers.PurchaseHandler
	rateLimiter     *ratelimiter.RateLimiter
	router          *handlers.Router
	closers         []func()
	stopBackground  context.CancelFunc
	startTime       time.Time
}

// dependencies are the outside-world collaborators a Server is assembled from
type dependencies struct {
	auth      services.AuthServiceInterface
	feed      services.PriceFeed
	snapshots services.PriceSnapshotStore
	connector services.StorageConnector
	wallet    services.WalletProvider
	recorder  services.PurchaseRecorder
	health    handlers.HealthChecker
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := &logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		OutputPaths: cfg.Logging.OutputPaths,
		Service:     serviceName,
		Version:     version,
	}
	if err := logger.Initialize(loggerConfig); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.GetLogger()

	log.Info("Starting Jackal multi-wallet purchase server",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("chain_id", cfg.Chain.ChainID),
		zap.String("gateway_url", cfg.Gateway.URL),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("price_snapshots", cfg.Redis.Addr != ""),
		zap.Duration("price_refresh_interval", cfg.Price.RefreshInterval),
		zap.Duration("broadcast_timeout", cfg.Chain.BroadcastTimeout),
		zap.Int("rate_limit_rpm", cfg.RateLimit.RequestsPerMinute),
		zap.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout+30*time.Second)
	server, err := NewServer(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		log.Fatal("Server failed to start", zap.Error(err))
	}
}

// NewServer connects the configured stores and the wallet gateway and assembles the server
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.GetLogger()

	log.Info("Initializing server components")

	log.Debug("Connecting to MongoDB")
	mongoClient, err := store.ConnectMongo(ctx, &cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	db := mongoClient.Database(cfg.MongoDB.Database)

	var (
		deps    dependencies
		closers []func()
		indexes = map[string][]string{
			cfg.MongoDB.APIKeyCollection: store.IndexNames(store.APIKeyIndexes()),
		}
	)
	deps.auth = services.NewAuthService(db, cfg.MongoDB.APIKeyCollection)

	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		_ = mongoClient.Disconnect(context.Background())
		return nil, err
	}

	checker := services.NewHealthChecker(db, indexes)

	log.Debug("Initializing purchase record store", zap.String("driver", cfg.Store.Driver))
	switch cfg.Store.Driver {
	case "mongo":
		deps.recorder = store.NewMongoPurchaseRepository(db, cfg.MongoDB.PurchaseCollection)
		indexes[cfg.MongoDB.PurchaseCollection] = store.IndexNames(store.PurchaseIndexes())
	case "postgres":
		repo, err := store.NewPostgresPurchaseRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to Postgres: %w", err))
		}
		closers = append(closers, repo.Close)
		if err := repo.Migrate(ctx); err != nil {
			return fail(fmt.Errorf("failed to migrate purchase schema: %w", err))
		}
		deps.recorder = repo
		checker.WithDependency("postgres", repo)
	default:
		log.Warn("Purchase records are not persisted", zap.String("driver", cfg.Store.Driver))
	}

	if cfg.Redis.Addr != "" {
		log.Debug("Initializing Redis price snapshot store", zap.String("addr", cfg.Redis.Addr))
		client := store.NewRedisClient(&cfg.Redis)
		closers = append(closers, func() { _ = client.Close() })
		snapshots := store.NewPriceSnapshotStore(client, cfg.Redis.PriceKey)
		deps.snapshots = snapshots
		checker.WithDependency("redis", snapshots)
	}

	gateway := services.NewGatewayClient(&cfg.Gateway)
	deps.feed = services.NewCoinGeckoFeed(&cfg.Price)
	deps.connector = gateway
	deps.wallet = gateway
	deps.health = checker

	s := newServer(cfg, deps)
	s.mongoClient = mongoClient
	s.closers = closers
	checker.WithPriceService(s.priceService).WithStorageService(s.storageService)

	if err := s.priceService.Restore(ctx); err != nil {
		log.Warn("Starting from the fallback price", zap.Error(err))
	}

	log.Info("Server components initialized successfully")
	return s, nil
}

// newServer wires services, handlers and routes around deps
func newServer(cfg *config.Config, deps dependencies) *Server {
	mc := metrics.NewMetricsCollector()

	priceService := services.NewPriceService(deps.feed, &cfg.Price,
		services.WithSnapshotStore(deps.snapshots),
		services.WithPriceMetrics(mc),
	)
	storageService := services.NewStorageService(deps.connector, &cfg.Chain, deps.recorder, mc)
	purchaseHandler := handlers.NewPurchaseHandler(storageService, deps.recorder, cfg.Cache.IdempotencyTTL, cfg.Cache.CleanupInterval, mc)
	rateLimiter := ratelimiter.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowSize)

	var healthHandler *handlers.HealthHandler
	if deps.health != nil {
		healthHandler = handlers.NewHealthHandler(deps.health, version)
	}

	router := handlers.NewRouter(
		deps.auth,
		rateLimiter,
		handlers.NewPriceHandler(priceService),
		purchaseHandler,
		handlers.NewAccountHandler(storageService, deps.wallet, cfg.Chain.ChainID),
		healthHandler,
	)

	return &Server{
		config:          cfg,
		metrics:         mc,
		priceService:    priceService,
		storageService:  storageService,
		purchaseHandler: purchaseHandler,
		rateLimiter:     rateLimiter,
		router:          router,
		startTime:       time.Now(),
	}
}

// Engine builds the gin engine with the full middleware stack and routes
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	s.setupMiddleware(engine)
	s.setupRoutes(engine)
	return engine
}

// Start starts the HTTP server with graceful shutdown handling
func (s *Server) Start() error {
	log := logger.GetLogger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:           s.Engine(),
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	log.Info("HTTP server configured",
		zap.String("address", s.httpServer.Addr),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout),
		zap.Duration("idle_timeout", s.config.Server.IdleTimeout),
	)

	s.startCleanupRoutines()
	go s.warmStorageSession(context.Background())

	go func() {
		log.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	return s.waitForShutdown()
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware(engine *gin.Engine) {
	engine.Use(logger.RecoveryMiddleware())
	engine.Use(logger.LoggingMiddleware())

	engine.Use(middleware.PerformanceMiddleware(slowRequestThreshold))
	engine.Use(middleware.RequestSizeMiddleware(maxRequestBodyBytes))
	engine.Use(middleware.ConcurrencyMiddleware(s.metrics))
	engine.Use(middleware.MetricsMiddleware(s.metrics))

	engine.Use(corsMiddleware())
}

// setupRoutes configures all application routes
func (s *Server) setupRoutes(engine *gin.Engine) {
	// no authentication
	s.router.SetupHealthRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/status", s.statusHandler)

	s.router.SetupRoutes(engine)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, "+handlers.IdempotencyHeader)
		c.Header("Access-Control-Expose-Headers", handlers.ReplayedHeader+", X-RateLimit-Remaining, X-Response-Time")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// statusHandler reports the signer session, the cached price and the in-process counters
func (s *Server) statusHandler(c *gin.Context) {
	reading := s.priceService.GetPrice(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"service":        serviceName,
		"version":        version,
		"status":         "running",
		"chain_id":       s.config.Chain.ChainID,
		"signer_address": s.storageService.ConnectedAddress(),
		"price": gin.H{
			"price_usd": reading.Price,
			"stale":     reading.Stale,
		},
		"wallet_success_rate": s.metrics.GetWalletSuccessRate(),
		"price_accept_rate":   s.metrics.GetPriceAcceptRate(),
		"metrics":             s.metrics.GetMetrics(),
		"uptime":              time.Since(s.startTime).String(),
	})
}

// startCleanupRoutines starts background cleanup tasks
func (s *Server) startCleanupRoutines() {
	log := logger.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel

	go func() {
		ticker := time.NewTicker(s.config.RateLimit.CleanupInterval)
		defer ticker.Stop()

		log.Debug("Starting rate limiter cleanup routine",
			zap.Duration("interval", s.config.RateLimit.CleanupInterval),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup()
			}
		}
	}()

	log.Info("Background cleanup routines started")
}

// warmStorageSession connects the signer before the first purchase arrives.
// Failure is not fatal; the first purchase retries the setup.
func (s *Server) warmStorageSession(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Gateway.Timeout)
	defer cancel()

	if err := s.storageService.EnsureSession(ctx); err != nil {
		logger.GetLogger().Warn("Storage session not ready at startup", zap.Error(err))
	}
}

// shutdownTimeout leaves room for an in-flight broadcast to settle
func (s *Server) shutdownTimeout() time.Duration {
	timeout := 30 * time.Second
	if t := 2 * s.config.Chain.BroadcastTimeout; t > timeout {
		timeout = t
	}
	return timeout
}

// waitForShutdown waits for interrupt signal and performs graceful shutdown
func (s *Server) waitForShutdown() error {
	log := logger.GetLogger()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	timeout := s.shutdownTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.cleanup(ctx)

	log.Info("Server gracefully stopped")
	return nil
}

// cleanup performs cleanup of all services
func (s *Server) cleanup(ctx context.Context) {
	log := logger.GetLogger()

	log.Info("Cleaning up services...")

	if s.stopBackground != nil {
		s.stopBackground()
	}
	if s.purchaseHandler != nil {
		s.purchaseHandler.Stop()
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}

	if s.mongoClient != nil {
		log.Debug("Disconnecting from MongoDB")
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			log.Error("Error disconnecting from MongoDB", zap.Error(err))
		}
	}

	if err := logger.GetLogger().Sync(); err != nil {
		fmt.Printf("Error syncing logger: %v\n", err)
	}

	log.Info("Cleanup completed")
}
