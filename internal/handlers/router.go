package handlers

import (
	"github.com/Criptoruim/jackalmultibuy/internal/middleware"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// Router handles HTTP routing setup
type Router struct {
	auth           services.AuthServiceInterface
	limiter        *ratelimiter.RateLimiter
	priceHandler   *PriceHandler
	purchase       *PurchaseHandler
	accountHandler *AccountHandler
	healthHandler  *HealthHandler
}

// NewRouter creates a new Router instance with all handlers. limiter may be nil.
func NewRouter(
	auth services.AuthServiceInterface,
	limiter *ratelimiter.RateLimiter,
	price *PriceHandler,
	purchase *PurchaseHandler,
	account *AccountHandler,
	health *HealthHandler,
) *Router {
	return &Router{
		auth:           auth,
		limiter:        limiter,
		priceHandler:   price,
		purchase:       purchase,
		accountHandler: account,
		healthHandler:  health,
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	api := engine.Group("/api")
	api.Use(middleware.AuthMiddleware(r.auth))
	// counted after auth so each key gets its own window
	if r.limiter != nil {
		api.Use(r.limiter.Middleware(middleware.APIKeyID))
	}
	{
		api.GET("/price", r.priceHandler.GetPrice)
		api.POST("/quote", r.priceHandler.GetQuote)

		api.POST("/purchase", middleware.RequirePurchase(), r.purchase.Purchase)
		api.GET("/purchases/:id", r.purchase.GetPurchase)

		api.GET("/storage/status", r.accountHandler.StorageStatus)
		api.POST("/wallet/connect", middleware.RequirePurchase(), r.accountHandler.ConnectWallet)
	}
}

// SetupHealthRoutes configures health check routes
func (r *Router) SetupHealthRoutes(engine *gin.Engine) {
	if r.healthHandler == nil {
		return
	}
	health := engine.Group("/health")
	{
		health.GET("", r.healthHandler.GetHealth)            // Overall health
		health.GET("/live", r.healthHandler.GetLiveness)     // Liveness probe
		health.GET("/ready", r.healthHandler.GetReadiness)   // Readiness probe
		health.GET("/db", r.healthHandler.GetDatabaseHealth) // Database health
	}
}
