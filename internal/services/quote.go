package services

import (
	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"github.com/shopspring/decimal"
)

// AnnualTierMonths is the duration from which the discounted unit price applies
const AnnualTierMonths = 12

var (
	monthlyUnitPriceUSD = decimal.NewFromInt(15)
	annualUnitPriceUSD  = decimal.RequireFromString("12.5")

	monthlyReferralDiscount = decimal.RequireFromString("0.10")
	annualReferralDiscount  = decimal.RequireFromString("0.05")

	gbPerTB = decimal.NewFromInt(models.GBPerTB)
	hundred = decimal.NewFromInt(100)
)

// ComputeQuote prices a purchase configuration at the given token price.
// Totals are computed unrounded and rounded to 2 decimals for display.
func ComputeQuote(pc models.PurchaseConfiguration, tokenPriceUSD float64) models.Quote {
	months := pc.Duration.Months()
	gb := pc.Capacity.GB()
	wallets := len(pc.Addresses())

	unit := monthlyUnitPriceUSD
	discount := monthlyReferralDiscount
	if months >= AnnualTierMonths {
		unit = annualUnitPriceUSD
		discount = annualReferralDiscount
	}
	if !pc.HasReferral() {
		discount = decimal.Zero
	}

	tb := decimal.NewFromInt(int64(gb)).Div(gbPerTB)
	totalUSD := unit.
		Mul(tb).
		Mul(decimal.NewFromInt(int64(months))).
		Mul(decimal.NewFromInt(int64(wallets))).
		Mul(decimal.NewFromInt(1).Sub(discount))

	price := decimal.NewFromFloat(tokenPriceUSD)
	totalToken := decimal.Zero
	if price.IsPositive() {
		totalToken = totalUSD.DivRound(price, 16)
	}

	return models.Quote{
		Months:          months,
		CapacityGB:      gb,
		CapacityTB:      tb,
		Wallets:         wallets,
		UnitPriceUSD:    unit,
		DiscountPercent: discount.Mul(hundred),
		TokenPriceUSD:   price,
		TotalUSD:        totalUSD.Round(2),
		TotalToken:      totalToken.Round(2),
		ExactUSD:        totalUSD,
		ExactToken:      totalToken,
	}
}
