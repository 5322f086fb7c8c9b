package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"
	"github.com/Criptoruim/jackalmultibuy/pkg/metrics"

	"go.uber.org/zap"
)

var (
	// ErrTransactionTimeout is the failure reason of a broadcast that did not settle in time
	ErrTransactionTimeout = errors.New("transaction timed out")
	// ErrNoTransactionMessages is returned when there is nothing to broadcast
	ErrNoTransactionMessages = errors.New("no valid transaction messages provided")
)

const (
	msgCreateTxFailed    = "failed to create storage purchase transaction"
	msgTransactionFailed = "transaction failed"
)

// session is one established backend session
type session struct {
	client  StorageClient
	handler StorageHandler
}

// StorageService buys storage plans for a list of wallets through one signer session
type StorageService struct {
	connector StorageConnector
	chain     *config.ChainConfig
	recorder  PurchaseRecorder
	metrics   *metrics.MetricsCollector

	// guards the cached session
	sessionMu sync.Mutex
	current   *session

	// held for a whole batch so purchases never interleave on the signer
	purchaseMu sync.Mutex
}

// NewStorageService creates a StorageService. recorder may be nil.
func NewStorageService(connector StorageConnector, chain *config.ChainConfig, recorder PurchaseRecorder, mc *metrics.MetricsCollector) *StorageService {
	if mc == nil {
		mc = metrics.NewMetricsCollector()
	}
	return &StorageService{
		connector: connector,
		chain:     chain,
		recorder:  recorder,
		metrics:   mc,
	}
}

// EnsureSession establishes the backend session once. A failure leaves no
// session cached so the next call starts over.
func (s *StorageService) EnsureSession(ctx context.Context) error {
	_, err := s.ensureSession(ctx)
	return err
}

func (s *StorageService) ensureSession(ctx context.Context) (*session, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.current != nil {
		return s.current, nil
	}

	log := logger.GetLogger().WithContext(ctx)
	sess, err := s.initialize(ctx)
	s.metrics.RecordSessionSetup(err == nil)
	if err != nil {
		log.Error("Failed to initialize storage backend session", zap.Error(err))
		return nil, err
	}

	log.Info("Storage backend session established",
		zap.String("wallet", sess.client.Address()),
		zap.String("chain_id", s.chain.ChainID),
	)
	s.current = sess
	return sess, nil
}

func (s *StorageService) initialize(ctx context.Context) (*session, error) {
	client, err := s.connector.Connect(ctx, NewClientSetup(s.chain))
	if err != nil {
		return nil, &models.BackendSetupError{Step: "connect", Cause: err}
	}
	if client == nil {
		return nil, &models.BackendSetupError{Step: "connect", Cause: errors.New("backend returned no client")}
	}

	handler, err := client.CreateStorageHandler(ctx)
	if err != nil {
		return nil, &models.BackendSetupError{Step: "create storage handler", Cause: err}
	}
	if handler == nil {
		return nil, &models.BackendSetupError{Step: "create storage handler", Cause: errors.New("failed to create storage handler")}
	}

	if err := handler.LoadProviderPool(ctx); err != nil {
		return nil, &models.BackendSetupError{Step: "load provider pool", Cause: err}
	}
	if err := handler.UpgradeSigner(ctx); err != nil {
		return nil, &models.BackendSetupError{Step: "upgrade signer", Cause: err}
	}

	return &session{client: client, handler: handler}, nil
}

// invalidate drops the cached session
func (s *StorageService) invalidate() {
	s.sessionMu.Lock()
	s.current = nil
	s.sessionMu.Unlock()
}

// ConnectedAddress returns the signer wallet of the current session, if any
func (s *StorageService) ConnectedAddress() string {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.client.Address()
}

// PurchaseStorage buys the configured plan for every target address in order.
// The returned slice has one outcome per address. When no purchase succeeds the
// outcomes are returned together with a *models.TotalFailureError carrying them.
func (s *StorageService) PurchaseStorage(ctx context.Context, pc models.PurchaseConfiguration) ([]models.PurchaseOutcome, error) {
	if err := pc.Validate(s.chain.AddressPrefix); err != nil {
		return nil, err
	}

	s.purchaseMu.Lock()
	defer s.purchaseMu.Unlock()

	sess, err := s.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	batchID := logger.GetBatchIDFromContext(ctx)
	if batchID == "" {
		batchID = logger.NewID()
		ctx = logger.ContextWithBatchID(ctx, batchID)
	}

	addresses := pc.Addresses()
	opts := PlanOptions{
		GB:       pc.Capacity.GB(),
		Days:     pc.Duration.Days(),
		Referrer: pc.Referral(),
	}

	log := logger.GetLogger().WithContext(ctx)
	log.Info("Starting storage purchase batch",
		zap.Int("wallet_count", len(addresses)),
		zap.Int("gb", opts.GB),
		zap.Int("days", opts.Days),
		zap.Bool("referral", opts.Referrer != ""),
		zap.String("signer", sess.client.Address()),
	)

	start := time.Now()
	outcomes := make([]models.PurchaseOutcome, 0, len(addresses))
	for _, address := range addresses {
		outcomes = append(outcomes, s.purchaseForWallet(ctx, sess, address, opts))
	}

	succeeded, failed := models.CountOutcomes(outcomes)
	s.metrics.RecordPurchaseBatch(succeeded, failed)
	log.Info("Completed storage purchase batch",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)

	s.record(ctx, batchID, pc, sess, outcomes)

	if succeeded == 0 {
		return outcomes, &models.TotalFailureError{Outcomes: outcomes}
	}
	return outcomes, nil
}

// purchaseForWallet never panics and never returns an error: every failure
// becomes a failed outcome for this wallet.
func (s *StorageService) purchaseForWallet(ctx context.Context, sess *session, wallet string, opts PlanOptions) (outcome models.PurchaseOutcome) {
	log := logger.GetLogger().WithContext(ctx).WithFields(map[string]interface{}{
		"wallet":    wallet,
		"component": "storage_service",
	})

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic during storage purchase", zap.Any("panic", r))
			outcome = models.Failed(wallet, fmt.Sprintf("failed to purchase storage for %s: %v", wallet, r))
		}
	}()

	opts.Receiver = wallet
	resp, err := sess.handler.PurchaseStoragePlan(ctx, opts)
	if err != nil {
		log.Warn("Backend rejected storage plan purchase", zap.Error(err))
		return models.Failed(wallet, err.Error())
	}
	if resp == nil {
		log.Warn("Backend returned no purchase response")
		return models.Failed(wallet, msgCreateTxFailed+": null response")
	}
	if resp.Errors || len(resp.TxEvents) == 0 {
		reason := resp.ErrorText
		if reason == "" {
			reason = msgCreateTxFailed
		}
		log.Warn("Backend could not build purchase transaction", zap.String("reason", reason))
		return models.Failed(wallet, reason)
	}

	txHash, err := s.broadcast(ctx, sess.client, resp.TxEvents)
	if err != nil {
		log.Warn("Storage purchase transaction failed", zap.Error(err))
		return models.Failed(wallet, err.Error())
	}

	log.Info("Storage purchased", zap.String("tx_hash", txHash))
	return models.Succeeded(wallet, txHash)
}

type broadcastResult struct {
	result *BroadcastResult
	err    error
}

// broadcast submits msgs and waits for them to settle, racing the configured timeout
func (s *StorageService) broadcast(ctx context.Context, client StorageClient, msgs []TxEvent) (string, error) {
	if len(msgs) == 0 {
		return "", ErrNoTransactionMessages
	}

	ctx, cancel := context.WithTimeout(ctx, s.chain.BroadcastTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan broadcastResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- broadcastResult{err: fmt.Errorf("broadcast panicked: %v", r)}
			}
		}()
		result, err := client.BroadcastAndMonitorMsgs(ctx, msgs)
		done <- broadcastResult{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.metrics.RecordBroadcast(time.Since(start), true)
			return "", ErrTransactionTimeout
		}
		s.metrics.RecordBroadcast(time.Since(start), false)
		return "", fmt.Errorf("transaction cancelled: %w", ctx.Err())
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.metrics.RecordBroadcast(time.Since(start), true)
			return "", ErrTransactionTimeout
		}
		s.metrics.RecordBroadcast(time.Since(start), false)
		if r.err != nil {
			return "", r.err
		}
		if r.result == nil {
			return "", errors.New(msgTransactionFailed + ": empty result")
		}
		if r.result.Error || r.result.ErrorText != "" {
			if r.result.ErrorText != "" {
				return "", errors.New(r.result.ErrorText)
			}
			return "", errors.New(msgTransactionFailed)
		}
		if r.result.TxHash == "" {
			return "", errors.New(msgTransactionFailed + ": no transaction hash returned")
		}
		return r.result.TxHash, nil
	}
}

func (s *StorageService) record(ctx context.Context, batchID string, pc models.PurchaseConfiguration, sess *session, outcomes []models.PurchaseOutcome) {
	if s.recorder == nil {
		return
	}

	succeeded, failed := models.CountOutcomes(outcomes)
	record := &models.PurchaseRecord{
		BatchID:         batchID,
		RequestedBy:     logger.GetUserIDFromContext(ctx),
		ConnectedWallet: sess.client.Address(),
		CapacityGB:      pc.Capacity.GB(),
		Months:          pc.Duration.Months(),
		Days:            pc.Duration.Days(),
		ReferralCode:    pc.Referral(),
		Outcomes:        outcomes,
		Succeeded:       succeeded,
		Failed:          failed,
		Status:          models.StatusOf(outcomes),
		CreatedAt:       time.Now().UTC(),
	}

	// recording must not be cut short by a caller that already gave up
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.recorder.SavePurchase(recordCtx, record); err != nil {
		logger.GetLogger().WithContext(ctx).Error("Failed to record purchase batch",
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
	}
}

// StorageStatus returns the plan status of the connected wallet. A backend
// error drops the session so the next call reconnects.
func (s *StorageService) StorageStatus(ctx context.Context) (*PlanStatus, error) {
	sess, err := s.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	status, err := sess.handler.PlanStatus(ctx)
	if err != nil {
		s.invalidate()
		logger.GetLogger().WithContext(ctx).Error("Failed to fetch storage plan status", zap.Error(err))
		return nil, fmt.Errorf("fetch plan status: %w", err)
	}
	return status, nil
}
