package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOutcome is the result of buying a plan for one target wallet
type PurchaseOutcome struct {
	Wallet  string `json:"wallet" bson:"wallet"`
	Success bool   `json:"success" bson:"success"`
	TxHash  string `json:"tx_hash,omitempty" bson:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty" bson:"error,omitempty"`
}

// Succeeded builds a successful outcome
func Succeeded(wallet, txHash string) PurchaseOutcome {
	return PurchaseOutcome{Wallet: wallet, Success: true, TxHash: txHash}
}

// Failed builds a failed outcome
func Failed(wallet, reason string) PurchaseOutcome {
	return PurchaseOutcome{Wallet: wallet, Error: reason}
}

// BatchStatus summarizes a batch of outcomes
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchFailed  BatchStatus = "failed"
)

// CountOutcomes returns how many outcomes succeeded and failed
func CountOutcomes(outcomes []PurchaseOutcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// StatusOf classifies a batch
func StatusOf(outcomes []PurchaseOutcome) BatchStatus {
	succeeded, failed := CountOutcomes(outcomes)
	switch {
	case succeeded == 0:
		return BatchFailed
	case failed == 0:
		return BatchSuccess
	default:
		return BatchPartial
	}
}

// PurchaseResponse is returned by the purchase endpoint
type PurchaseResponse struct {
	BatchID   string            `json:"batch_id"`
	Status    BatchStatus       `json:"status"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Outcomes  []PurchaseOutcome `json:"outcomes"`
	// set when no wallet received a plan
	Error *ErrorDetail `json:"error,omitempty"`
}

// PurchaseRecord is the persisted audit entry of one purchase batch
type PurchaseRecord struct {
	BatchID         string            `json:"batch_id" bson:"_id"`
	RequestedBy     string            `json:"requested_by,omitempty" bson:"requested_by,omitempty"`
	ConnectedWallet string            `json:"connected_wallet,omitempty" bson:"connected_wallet,omitempty"`
	CapacityGB      int               `json:"capacity_gb" bson:"capacity_gb"`
	Months          int               `json:"months" bson:"months"`
	Days            int               `json:"days" bson:"days"`
	ReferralCode    string            `json:"referral_code,omitempty" bson:"referral_code,omitempty"`
	Outcomes        []PurchaseOutcome `json:"outcomes" bson:"outcomes"`
	Succeeded       int               `json:"succeeded" bson:"succeeded"`
	Failed          int               `json:"failed" bson:"failed"`
	Status          BatchStatus       `json:"status" bson:"status"`
	CreatedAt       time.Time         `json:"created_at" bson:"created_at"`
}

// Quote is the rendered price estimate for a purchase configuration
type Quote struct {
	Months          int             `json:"months"`
	CapacityGB      int             `json:"capacity_gb"`
	CapacityTB      decimal.Decimal `json:"capacity_tb"`
	Wallets         int             `json:"wallets"`
	UnitPriceUSD    decimal.Decimal `json:"unit_price_usd"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TokenPriceUSD   decimal.Decimal `json:"token_price_usd"`
	TotalUSD        decimal.Decimal `json:"total_usd"`
	TotalToken      decimal.Decimal `json:"total_token"`

	// unrounded totals, kept for callers that aggregate quotes
	ExactUSD   decimal.Decimal `json:"-"`
	ExactToken decimal.Decimal `json:"-"`
}

// PriceReading always carries a usable price. Stale and Err describe a degraded read.
type PriceReading struct {
	Price     float64   `json:"price_usd"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
	Err       error     `json:"-"`
}

// ErrorText returns the degraded-read cause for rendering
func (r PriceReading) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// PriceSnapshot is the last accepted price as persisted between restarts
type PriceSnapshot struct {
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}
