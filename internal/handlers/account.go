package handlers

import (
	"net/http"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves the signer wallet and its storage plan
type AccountHandler struct {
	storage services.StorageServiceInterface
	wallet  services.WalletProvider
	chainID string
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(storage services.StorageServiceInterface, wallet services.WalletProvider, chainID string) *AccountHandler {
	return &AccountHandler{storage: storage, wallet: wallet, chainID: chainID}
}

// StorageStatus handles GET /api/storage/status
func (h *AccountHandler) StorageStatus(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	status, err := h.storage.StorageStatus(c.Request.Context())
	if err != nil {
		if !models.IsBackendSetupError(err) {
			err = models.NewAppErrorWithCause(models.ErrorCodeBackendSetup, "Failed to fetch storage plan status", err)
		}
		models.HandleError(c, err, log)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ConnectWallet handles POST /api/wallet/connect
func (h *AccountHandler) ConnectWallet(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	address, err := services.ConnectWallet(c.Request.Context(), h.wallet, h.chainID)
	if err != nil {
		models.HandleError(c, models.NewAppErrorWithCause(models.ErrorCodeWalletConnect, "Failed to connect wallet", err), log)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":  address,
		"chain_id": h.chainID,
	})
}
