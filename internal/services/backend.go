package services

import (
	"encoding/json"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/config"
)

// ClientSetup is the connection profile handed to the storage backend
type ClientSetup struct {
	SelectedWallet string `json:"selectedWallet"`
	ChainID        string `json:"chainId"`
	ChainName      string `json:"chainName"`
	Endpoint       string `json:"endpoint"`
	REST           string `json:"rest"`
	AddressPrefix  string `json:"bech32PrefixAccAddr"`
	Denom          string `json:"coinDenom"`
	MinimalDenom   string `json:"coinMinimalDenom"`
	Decimals       int    `json:"coinDecimals"`
}

// NewClientSetup derives the backend connection profile from chain config
func NewClientSetup(cfg *config.ChainConfig) ClientSetup {
	// the account prefix is the address prefix without the bech32 separator
	prefix := cfg.AddressPrefix
	if n := len(prefix); n > 0 && prefix[n-1] == '1' {
		prefix = prefix[:n-1]
	}
	return ClientSetup{
		SelectedWallet: cfg.SelectedWallet,
		ChainID:        cfg.ChainID,
		ChainName:      cfg.ChainName,
		Endpoint:       cfg.RPC,
		REST:           cfg.REST,
		AddressPrefix:  prefix,
		Denom:          cfg.Denom,
		MinimalDenom:   cfg.MinimalDenom,
		Decimals:       cfg.Decimals,
	}
}

// Account is one wallet account exposed by a WalletProvider
type Account struct {
	Address string `json:"address"`
}

// PlanOptions are the arguments of a storage plan purchase
type PlanOptions struct {
	GB       int    `json:"gb"`
	Days     int    `json:"days"`
	Receiver string `json:"receiver"`
	Referrer string `json:"referrer,omitempty"`
}

// TxEvent is an encoded, broadcastable message. Its content is owned by the backend.
type TxEvent struct {
	TypeURL string          `json:"typeUrl"`
	Value   json.RawMessage `json:"value"`
}

// PlanResponse is what the backend returns when asked to build a purchase
type PlanResponse struct {
	Errors    bool      `json:"errors"`
	ErrorText string    `json:"errorText,omitempty"`
	TxEvents  []TxEvent `json:"txEvent"`
}

// BroadcastResult is the settled outcome of a broadcast
type BroadcastResult struct {
	TxHash    string `json:"transactionHash"`
	Height    int64  `json:"height,omitempty"`
	Error     bool   `json:"error,omitempty"`
	ErrorText string `json:"errorText,omitempty"`
}

// PlanStatus describes the storage plan of the connected wallet
type PlanStatus struct {
	Owner      string    `json:"owner"`
	Active     bool      `json:"active"`
	TotalBytes int64     `json:"total_bytes"`
	UsedBytes  int64     `json:"used_bytes"`
	ExpiresAt  time.Time `json:"expires_at"`
}
