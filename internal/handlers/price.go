package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PriceResponse is returned by GET /api/price
type PriceResponse struct {
	PriceUSD  float64    `json:"price_usd"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	Stale     bool       `json:"stale"`
	Warning   string     `json:"warning,omitempty"`
}

func newPriceResponse(r models.PriceReading) PriceResponse {
	resp := PriceResponse{PriceUSD: r.Price, Stale: r.Stale, Warning: r.ErrorText()}
	if !r.FetchedAt.IsZero() {
		fetchedAt := r.FetchedAt
		resp.FetchedAt = &fetchedAt
	}
	return resp
}

// PriceHandler serves the token price and quotes
type PriceHandler struct {
	price services.PriceServiceInterface
}

// NewPriceHandler creates a new PriceHandler instance
func NewPriceHandler(price services.PriceServiceInterface) *PriceHandler {
	return &PriceHandler{price: price}
}

// GetPrice handles GET /api/price. ?force=true bypasses the refresh interval.
func (h *PriceHandler) GetPrice(c *gin.Context) {
	ctx := c.Request.Context()

	var reading models.PriceReading
	if c.Query("force") == "true" {
		reading = h.price.ForceUpdate(ctx)
	} else {
		reading = h.price.GetPrice(ctx)
	}

	c.JSON(http.StatusOK, newPriceResponse(reading))
}

// QuoteResponse is returned by POST /api/quote
type QuoteResponse struct {
	models.Quote
	Price PriceResponse `json:"price"`
}

// GetQuote handles POST /api/quote
func (h *PriceHandler) GetQuote(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	pc, ok := bindPurchaseConfiguration(c, log)
	if !ok {
		return
	}
	if err := pc.ValidatePlan(); err != nil {
		models.HandleError(c, err, log)
		return
	}

	reading := h.price.GetPrice(c.Request.Context())
	quote := services.ComputeQuote(pc, reading.Price)

	log.Debug("Quote computed",
		zap.Int("months", quote.Months),
		zap.Int("capacity_gb", quote.CapacityGB),
		zap.Int("wallets", quote.Wallets),
		zap.String("total_usd", quote.TotalUSD.String()),
	)

	c.JSON(http.StatusOK, QuoteResponse{Quote: quote, Price: newPriceResponse(reading)})
}

// bindPurchaseConfiguration decodes the request body, writing the error response on failure
func bindPurchaseConfiguration(c *gin.Context, log *logger.Logger) (models.PurchaseConfiguration, bool) {
	var pc models.PurchaseConfiguration
	if err := c.ShouldBindJSON(&pc); err != nil {
		if models.IsValidationError(err) {
			models.HandleError(c, err, log)
			return pc, false
		}

		var maxBytesErr *http.MaxBytesError
		details := err.Error()
		if errors.As(err, &maxBytesErr) {
			details = "request body too large"
		}
		log.Warn("Invalid JSON in request",
			zap.Error(err),
			zap.String("content_type", c.GetHeader("Content-Type")),
		)
		appErr := models.NewAppErrorWithDetails(models.ErrorCodeMalformedJSON, "Invalid JSON format", details)
		models.HandleError(c, appErr, log)
		return pc, false
	}
	return pc, true
}
