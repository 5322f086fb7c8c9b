package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
)

const sessionHeader = "X-Session-ID"

// GatewayError is a non-2xx answer from the wallet bridge
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// GatewayClient talks to the wallet bridge that holds the signer and the storage SDK.
// It is both the WalletProvider and the StorageConnector of the service.
type GatewayClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGatewayClient creates a client for the configured bridge
func NewGatewayClient(cfg *config.GatewayConfig) *GatewayClient {
	return &GatewayClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *GatewayClient) do(ctx context.Context, method, path, sessionID string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &GatewayError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Enable asks the wallet to authorize the chain
func (g *GatewayClient) Enable(ctx context.Context, chainID string) error {
	return g.do(ctx, http.MethodPost, "/v1/wallet/enable", "", map[string]string{"chain_id": chainID}, nil)
}

// Accounts lists the wallet's accounts for the enabled chain
func (g *GatewayClient) Accounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/wallet/accounts", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Connect opens a backend session for the configured wallet
func (g *GatewayClient) Connect(ctx context.Context, setup ClientSetup) (StorageClient, error) {
	var out struct {
		SessionID string `json:"session_id"`
		Address   string `json:"address"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/connect", "", setup, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("gateway returned no session id")
	}
	return &gatewaySession{gateway: g, id: out.SessionID, address: out.Address}, nil
}

type gatewaySession struct {
	gateway *GatewayClient
	id      string
	address string
}

func (s *gatewaySession) Address() string {
	return s.address
}

func (s *gatewaySession) CreateStorageHandler(ctx context.Context) (StorageHandler, error) {
	if err := s.gateway.do(ctx, http.MethodPost, "/v1/storage-handler", s.id, nil, nil); err != nil {
		return nil, err
	}
	return &gatewayHandler{session: s}, nil
}

func (s *gatewaySession) BroadcastAndMonitorMsgs(ctx context.Context, msgs []TxEvent) (*BroadcastResult, error) {
	var out BroadcastResult
	in := map[string][]TxEvent{"msgs": msgs}
	if err := s.gateway.do(ctx, http.MethodPost, "/v1/broadcast", s.id, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type gatewayHandler struct {
	session *gatewaySession
}

func (h *gatewayHandler) LoadProviderPool(ctx context.Context) error {
	return h.session.gateway.do(ctx, http.MethodPost, "/v1/provider-pool", h.session.id, nil, nil)
}

func (h *gatewayHandler) UpgradeSigner(ctx context.Context) error {
	return h.session.gateway.do(ctx, http.MethodPost, "/v1/signer/upgrade", h.session.id, nil, nil)
}

func (h *gatewayHandler) PurchaseStoragePlan(ctx context.Context, opts PlanOptions) (*PlanResponse, error) {
	var out PlanResponse
	if err := h.session.gateway.do(ctx, http.MethodPost, "/v1/plans/purchase", h.session.id, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *gatewayHandler) PlanStatus(ctx context.Context) (*PlanStatus, error) {
	var out PlanStatus
	if err := h.session.gateway.do(ctx, http.MethodGet, "/v1/plans/status", h.session.id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
