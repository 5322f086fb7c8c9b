package services

import (
	"context"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
)

// AuthServiceInterface defines the interface for authentication services
type AuthServiceInterface interface {
	ValidateAPIKey(ctx context.Context, key string) (*models.APIKey, error)
}

// PriceFeed reads the payment token's USD value from an external source
type PriceFeed interface {
	FetchUSDPrice(ctx context.Context) (float64, error)
}

// PriceSnapshotStore persists the last accepted price across restarts.
// LoadPrice returns nil, nil when nothing has been stored yet.
type PriceSnapshotStore interface {
	LoadPrice(ctx context.Context) (*models.PriceSnapshot, error)
	SavePrice(ctx context.Context, snapshot models.PriceSnapshot) error
}

// PriceServiceInterface is what the HTTP layer needs from the price engine
type PriceServiceInterface interface {
	GetPrice(ctx context.Context) models.PriceReading
	ForceUpdate(ctx context.Context) models.PriceReading
}

// WalletProvider is a browser-style wallet that can be enabled for a chain
type WalletProvider interface {
	Enable(ctx context.Context, chainID string) error
	Accounts(ctx context.Context) ([]Account, error)
}

// StorageConnector opens a wallet-authenticated session with the storage backend
type StorageConnector interface {
	Connect(ctx context.Context, setup ClientSetup) (StorageClient, error)
}

// StorageClient is a connected backend session
type StorageClient interface {
	// Address returns the connected wallet's chain address
	Address() string
	CreateStorageHandler(ctx context.Context) (StorageHandler, error)
	BroadcastAndMonitorMsgs(ctx context.Context, msgs []TxEvent) (*BroadcastResult, error)
}

// StorageHandler builds storage transactions for the connected session
type StorageHandler interface {
	LoadProviderPool(ctx context.Context) error
	UpgradeSigner(ctx context.Context) error
	PurchaseStoragePlan(ctx context.Context, opts PlanOptions) (*PlanResponse, error)
	PlanStatus(ctx context.Context) (*PlanStatus, error)
}

// PurchaseRecorder stores an audit record per purchase batch
type PurchaseRecorder interface {
	SavePurchase(ctx context.Context, record *models.PurchaseRecord) error
	GetPurchase(ctx context.Context, batchID string) (*models.PurchaseRecord, error)
}

// StorageServiceInterface is what the HTTP layer needs from the purchase orchestrator
type StorageServiceInterface interface {
	PurchaseStorage(ctx context.Context, pc models.PurchaseConfiguration) ([]models.PurchaseOutcome, error)
	StorageStatus(ctx context.Context) (*PlanStatus, error)
	ConnectedAddress() string
}
