package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/pkg/cache"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"
	"github.com/Criptoruim/jackalmultibuy/pkg/metrics"
	"github.com/Criptoruim/jackalmultibuy/pkg/mutex"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// IdempotencyHeader lets a client retry a purchase without buying twice
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the replay cache
	ReplayedHeader = "Idempotent-Replayed"
)

type replay struct {
	fingerprint string
	status      int
	body        models.PurchaseResponse
}

// PurchaseHandler handles purchase requests and purchase record lookups
type PurchaseHandler struct {
	storage  services.StorageServiceInterface
	recorder services.PurchaseRecorder
	locks    *mutex.KeyedMutex
	replays  *cache.Cache[replay]
	metrics  *metrics.MetricsCollector
}

// NewPurchaseHandler creates a new PurchaseHandler instance. recorder may be nil.
func NewPurchaseHandler(storage services.StorageServiceInterface, recorder services.PurchaseRecorder, replayTTL, cleanupInterval time.Duration, mc *metrics.MetricsCollector) *PurchaseHandler {
	if mc == nil {
		mc = metrics.NewMetricsCollector()
	}
	return &PurchaseHandler{
		storage:  storage,
		recorder: recorder,
		locks:    mutex.New(),
		replays:  cache.New[replay](replayTTL, cleanupInterval),
		metrics:  mc,
	}
}

// Stop releases the replay cache
func (h *PurchaseHandler) Stop() {
	h.replays.Stop()
}

// fingerprint identifies the normalized request a key was first used with
func fingerprint(pc models.PurchaseConfiguration) string {
	return fmt.Sprintf("%d|%d|%s|%s", pc.Capacity.GB(), pc.Duration.Months(), strings.Join(pc.Addresses(), ","), pc.Referral())
}

// Purchase handles POST /api/purchase
func (h *PurchaseHandler) Purchase(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	pc, ok := bindPurchaseConfiguration(c, log)
	if !ok {
		return
	}

	idemKey := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	if idemKey != "" {
		// keys are scoped to the caller
		scoped := c.GetString("api_key_id") + ":" + idemKey
		unlock := h.locks.Lock(scoped)
		defer unlock()

		if prev, found := h.replays.Get(scoped); found {
			if prev.fingerprint != fingerprint(pc) {
				appErr := models.NewAppErrorWithDetails(
					models.ErrorCodeIdempotencyKey,
					"Idempotency-Key was already used for a different purchase",
					"Use a new key for a new purchase",
				)
				models.HandleError(c, appErr, log)
				return
			}
			log.Info("Replaying purchase response", zap.String("batch_id", prev.body.BatchID))
			h.metrics.RecordIdempotentReplay()
			c.Header(ReplayedHeader, "true")
			c.JSON(prev.status, prev.body)
			return
		}

		status, body, ok := h.purchase(c, log, pc)
		if ok {
			h.replays.Set(scoped, replay{fingerprint: fingerprint(pc), status: status, body: body})
		}
		return
	}

	h.purchase(c, log, pc)
}

// purchase runs the batch and writes the response. ok is false when nothing was attempted.
func (h *PurchaseHandler) purchase(c *gin.Context, log *logger.Logger, pc models.PurchaseConfiguration) (int, models.PurchaseResponse, bool) {
	batchID := logger.NewID()
	// on-chain purchases continue even if the caller disconnects
	ctx := logger.ContextWithBatchID(context.WithoutCancel(c.Request.Context()), batchID)
	log = log.WithFields(map[string]interface{}{"batch_id": batchID})

	outcomes, err := h.storage.PurchaseStorage(ctx, pc)
	if err != nil && !models.IsTotalFailure(err) {
		models.HandleError(c, err, log)
		return 0, models.PurchaseResponse{}, false
	}

	succeeded, failed := models.CountOutcomes(outcomes)
	resp := models.PurchaseResponse{
		BatchID:   batchID,
		Status:    models.StatusOf(outcomes),
		Succeeded: succeeded,
		Failed:    failed,
		Outcomes:  outcomes,
	}

	status := http.StatusOK
	switch resp.Status {
	case models.BatchPartial:
		status = http.StatusMultiStatus
	case models.BatchFailed:
		status = models.ErrorCodePurchaseFailed.HTTPStatusCode()
		resp.Error = &models.ErrorDetail{
			Code:    models.ErrorCodePurchaseFailed,
			Message: "Failed to purchase storage for any wallet",
			Details: err.Error(),
		}
		log.Error("Storage purchase failed for every wallet", zap.Int("wallet_count", failed))
	}

	log.Info("Purchase request completed",
		zap.String("status", string(resp.Status)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)

	c.JSON(status, resp)
	return status, resp, true
}

// GetPurchase handles GET /api/purchases/:id
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	if h.recorder == nil {
		models.HandleError(c, models.NewAppError(models.ErrorCodeNotFound, "Purchase records are not stored"), log)
		return
	}

	record, err := h.recorder.GetPurchase(c.Request.Context(), c.Param("id"))
	if err != nil {
		if !errors.Is(err, models.ErrPurchaseNotFound) {
			err = models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Failed to load purchase record", err)
		}
		models.HandleError(c, err, log)
		return
	}

	// records are visible to the key that created them
	if keyID := c.GetString("api_key_id"); record.RequestedBy != "" && keyID != "" && record.RequestedBy != keyID {
		models.HandleError(c, models.NewAppError(models.ErrorCodeNotFound, "Purchase record not found"), log)
		return
	}

	c.JSON(http.StatusOK, record)
}
