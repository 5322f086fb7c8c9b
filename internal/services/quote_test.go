package services

import (
	"testing"

	"github.com/Criptoruim/jackalmultibuy/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func purchaseConfig(months int, gb int, referral string, wallets ...string) models.PurchaseConfiguration {
	return models.PurchaseConfiguration{
		Duration:        models.Duration{Value: months, Unit: models.DurationMonth},
		Capacity:        models.Capacity{Value: gb, Unit: models.CapacityGB},
		TargetAddresses: wallets,
		ReferralCode:    referral,
	}
}

func TestComputeQuoteWorkedExamples(t *testing.T) {
	t.Run("2TB one month", func(t *testing.T) {
		pc := models.PurchaseConfiguration{
			Duration:        models.Duration{Value: 1, Unit: models.DurationMonth},
			Capacity:        models.Capacity{Value: 2, Unit: models.CapacityTB},
			TargetAddresses: []string{"jkl1a"},
		}
		q := ComputeQuote(pc, 0.08)

		assert.Equal(t, "30", q.TotalUSD.String())
		assert.Equal(t, "375", q.TotalToken.String())
		assert.Equal(t, "2", q.CapacityTB.String())
		assert.Equal(t, "15", q.UnitPriceUSD.String())
		assert.True(t, q.DiscountPercent.IsZero())
	})

	t.Run("1GB one year with referral", func(t *testing.T) {
		q := ComputeQuote(purchaseConfig(12, 1, "FRIEND", "jkl1a"), 0.10)

		assert.Equal(t, "0.14", q.TotalUSD.StringFixed(2))
		assert.Equal(t, "1.39", q.TotalToken.StringFixed(2))
		assert.True(t, q.ExactUSD.Equal(decimal.RequireFromString("0.13916015625")))
		assert.Equal(t, "5", q.DiscountPercent.String())
		assert.Equal(t, "12.5", q.UnitPriceUSD.String())
	})
}

func TestComputeQuoteTierBoundary(t *testing.T) {
	eleven := ComputeQuote(purchaseConfig(11, 1024, "", "jkl1a"), 1)
	twelve := ComputeQuote(purchaseConfig(12, 1024, "", "jkl1a"), 1)

	assert.Equal(t, "15", eleven.UnitPriceUSD.String())
	assert.Equal(t, "12.5", twelve.UnitPriceUSD.String())
	assert.Equal(t, "165", eleven.TotalUSD.String())
	assert.Equal(t, "150", twelve.TotalUSD.String())
}

func TestComputeQuoteReferralDiscount(t *testing.T) {
	monthly := ComputeQuote(purchaseConfig(1, 1024, "  ref ", "jkl1a"), 1)
	assert.Equal(t, "13.5", monthly.TotalUSD.String())
	assert.Equal(t, "10", monthly.DiscountPercent.String())

	annual := ComputeQuote(purchaseConfig(24, 1024, "ref", "jkl1a"), 1)
	assert.Equal(t, "285", annual.TotalUSD.String())

	blank := ComputeQuote(purchaseConfig(1, 1024, "   ", "jkl1a"), 1)
	assert.Equal(t, "15", blank.TotalUSD.String(), "whitespace referral is no referral")
}

func TestComputeQuoteLinearInWallets(t *testing.T) {
	one := ComputeQuote(purchaseConfig(3, 512, "", "jkl1a"), 0.083)
	three := ComputeQuote(purchaseConfig(3, 512, "", "jkl1a", "jkl1b", " ", "jkl1c"), 0.083)

	assert.Equal(t, 3, three.Wallets)
	assert.True(t, three.ExactUSD.Equal(one.ExactUSD.Mul(decimal.NewFromInt(3))))
}

func TestComputeQuoteNonPositivePrice(t *testing.T) {
	q := ComputeQuote(purchaseConfig(1, 1024, "", "jkl1a"), 0)
	assert.Equal(t, "15", q.TotalUSD.String())
	assert.True(t, q.TotalToken.IsZero())
}
