package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DurationUnit is the unit a storage plan duration is expressed in
type DurationUnit string

const (
	DurationMonth DurationUnit = "month"
	DurationYear  DurationUnit = "year"
)

// CapacityUnit is the unit a storage plan capacity is expressed in
type CapacityUnit string

const (
	CapacityGB CapacityUnit = "GB"
	CapacityTB CapacityUnit = "TB"
)

const (
	// GBPerTB is the binary conversion used by the storage backend
	GBPerTB = 1024
	// DaysPerMonth approximates a billing month for the backend's day-based plans
	DaysPerMonth = 30

	// MaxCapacityGB and MaxDurationDays keep normalized plans inside the
	// backend's and the record store's 32-bit integer fields
	MaxCapacityGB   = math.MaxInt32
	MaxDurationDays = math.MaxInt32
)

// ParseDurationUnit accepts singular and plural forms in any case
func ParseDurationUnit(s string) (DurationUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "months", "mo":
		return DurationMonth, nil
	case "year", "years", "yr":
		return DurationYear, nil
	}
	return "", NewValidationError("duration", fmt.Sprintf("unknown duration unit %q", s))
}

// ParseCapacityUnit accepts GB and TB in any case
func ParseCapacityUnit(s string) (CapacityUnit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GB":
		return CapacityGB, nil
	case "TB":
		return CapacityTB, nil
	}
	return "", NewValidationError("capacity", fmt.Sprintf("unknown capacity unit %q", s))
}

// Duration is a positive amount of plan time
type Duration struct {
	Value int          `json:"value" bson:"value"`
	Unit  DurationUnit `json:"unit" bson:"unit"`
}

// Months normalizes the duration to months
func (d Duration) Months() int {
	if d.Unit == DurationYear {
		return d.Value * 12
	}
	return d.Value
}

// Days converts the normalized months to the backend's day unit
func (d Duration) Days() int {
	return d.Months() * DaysPerMonth
}

// UnmarshalJSON normalizes the unit spelling so "Years" and "year" decode the same
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value int    `json:"value"`
		Unit  string `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	unit := DurationMonth
	if raw.Unit != "" {
		parsed, err := ParseDurationUnit(raw.Unit)
		if err != nil {
			return err
		}
		unit = parsed
	}
	d.Value, d.Unit = raw.Value, unit
	return nil
}

// Capacity is a positive amount of plan storage
type Capacity struct {
	Value int          `json:"value" bson:"value"`
	Unit  CapacityUnit `json:"unit" bson:"unit"`
}

// GB normalizes the capacity to gigabytes
func (c Capacity) GB() int {
	if c.Unit == CapacityTB {
		return c.Value * GBPerTB
	}
	return c.Value
}

// UnmarshalJSON normalizes the unit spelling so "tb" and "TB" decode the same
func (c *Capacity) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value int    `json:"value"`
		Unit  string `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	unit := CapacityGB
	if raw.Unit != "" {
		parsed, err := ParseCapacityUnit(raw.Unit)
		if err != nil {
			return err
		}
		unit = parsed
	}
	c.Value, c.Unit = raw.Value, unit
	return nil
}

// PurchaseConfiguration is everything the caller chose for a multi-wallet purchase
type PurchaseConfiguration struct {
	Duration        Duration `json:"duration"`
	Capacity        Capacity `json:"capacity"`
	TargetAddresses []string `json:"target_addresses"`
	ReferralCode    string   `json:"referral_code,omitempty"`
}

// Addresses returns the target addresses with blank entries dropped, order preserved
func (pc PurchaseConfiguration) Addresses() []string {
	addresses := make([]string, 0, len(pc.TargetAddresses))
	for _, addr := range pc.TargetAddresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		addresses = append(addresses, addr)
	}
	return addresses
}

// Referral returns the trimmed referral code
func (pc PurchaseConfiguration) Referral() string {
	return strings.TrimSpace(pc.ReferralCode)
}

// HasReferral reports whether a referral code activates the discount
func (pc PurchaseConfiguration) HasReferral() bool {
	return pc.Referral() != ""
}

// maxValue is the largest raw value whose normalized form stays within limit
func (c Capacity) maxValue() int {
	if c.Unit == CapacityTB {
		return MaxCapacityGB / GBPerTB
	}
	return MaxCapacityGB
}

func (d Duration) maxValue() int {
	if d.Unit == DurationYear {
		return MaxDurationDays / (12 * DaysPerMonth)
	}
	return MaxDurationDays / DaysPerMonth
}

// ValidatePlan checks capacity and duration only, which is all a quote needs.
// Bounds are checked on the raw values so normalization never overflows.
func (pc PurchaseConfiguration) ValidatePlan() error {
	if pc.Capacity.Value < 1 {
		return NewValidationError("capacity", "Minimum storage size is 1GB")
	}
	if pc.Capacity.Value > pc.Capacity.maxValue() {
		return NewValidationError("capacity", fmt.Sprintf("Maximum storage size is %dGB", MaxCapacityGB))
	}
	if pc.Duration.Value < 1 {
		return NewValidationError("duration", "Minimum duration is 1 month")
	}
	if pc.Duration.Value > pc.Duration.maxValue() {
		return NewValidationError("duration", fmt.Sprintf("Maximum duration is %d days", MaxDurationDays))
	}
	return nil
}

// Validate checks the purchase invariants. Nothing about the backend is consulted.
func (pc PurchaseConfiguration) Validate(addressPrefix string) error {
	if err := pc.ValidatePlan(); err != nil {
		return err
	}

	addresses := pc.Addresses()
	if len(addresses) == 0 {
		return NewValidationError("target_addresses", "At least one wallet address is required")
	}
	for i, addr := range addresses {
		if !strings.HasPrefix(addr, addressPrefix) {
			verr := NewValidationError("target_addresses", fmt.Sprintf("Invalid wallet address format: %s", addr))
			verr.Index = i
			return verr
		}
	}
	return nil
}
