package engine

import (
	"testing"

	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func percentRule(id int64, code string, percent float64) ruledomain.PricingRule {
	r := baseRule(id, code)
	r.PercentOff = &percent
	return r
}

func fixedAmountRule(id int64, code string, amount int64) ruledomain.PricingRule {
	r := baseRule(id, code)
	r.DiscountType = ruledomain.DiscountFixedAmount
	r.PercentOff = nil
	r.AmountCents = &amount
	return r
}

func fixedPriceRule(id int64, code string, price int64) ruledomain.PricingRule {
	r := baseRule(id, code)
	r.DiscountType = ruledomain.DiscountFixedPrice
	r.PercentOff = nil
	r.AmountCents = &price
	return r
}

func TestApplyStacksCumulatively(t *testing.T) {
	rules := []ruledomain.PricingRule{
		percentRule(1, "first-ten", 10),
		percentRule(2, "second-ten", 10),
	}

	adjustments, final := Apply(10000, rules)
	require.Len(t, adjustments, 2)

	assert.Equal(t, int64(10000), adjustments[0].PriceBeforeCents)
	assert.Equal(t, int64(1000), adjustments[0].DiscountCents)
	assert.Equal(t, int64(9000), adjustments[0].PriceAfterCents)

	assert.Equal(t, int64(9000), adjustments[1].PriceBeforeCents)
	assert.Equal(t, int64(900), adjustments[1].DiscountCents)
	assert.Equal(t, int64(8100), adjustments[1].PriceAfterCents)

	assert.Equal(t, int64(8100), final)
}

func TestApplyPercentRounding(t *testing.T) {
	adjustments, final := Apply(999, []ruledomain.PricingRule{percentRule(1, "third", 33.33)})
	require.Len(t, adjustments, 1)
	// 999 * 0.3333 = 332.9667, rounds to 333.
	assert.Equal(t, int64(333), adjustments[0].DiscountCents)
	assert.Equal(t, int64(666), final)
}

func TestApplyFixedAmountCapsAtRunningPrice(t *testing.T) {
	adjustments, final := Apply(300, []ruledomain.PricingRule{fixedAmountRule(1, "big-discount", 500)})
	require.Len(t, adjustments, 1)
	assert.Equal(t, int64(300), adjustments[0].DiscountCents)
	assert.Equal(t, int64(0), final)
}

func TestApplyFixedPriceNeverRaisesPrice(t *testing.T) {
	adjustments, final := Apply(5000, []ruledomain.PricingRule{fixedPriceRule(1, "floor-8000", 8000)})
	require.Len(t, adjustments, 1)
	assert.Equal(t, int64(0), adjustments[0].DiscountCents)
	assert.Equal(t, int64(5000), final)
}

func TestApplyFixedPriceLowersPrice(t *testing.T) {
	_, final := Apply(7900, []ruledomain.PricingRule{fixedPriceRule(1, "launch", 5900)})
	assert.Equal(t, int64(5900), final)
}

func TestApplyMixedTrail(t *testing.T) {
	rules := []ruledomain.PricingRule{
		fixedPriceRule(1, "launch", 5900),
		percentRule(2, "loyalty", 10),
		fixedAmountRule(3, "credit", 400),
	}

	adjustments, final := Apply(7900, rules)
	require.Len(t, adjustments, 3)

	assert.Equal(t, int64(5900), adjustments[0].PriceAfterCents)
	assert.Equal(t, int64(590), adjustments[1].DiscountCents)
	assert.Equal(t, int64(5310), adjustments[1].PriceAfterCents)
	assert.Equal(t, int64(4910), adjustments[2].PriceAfterCents)
	assert.Equal(t, int64(4910), final)
}

func TestApplyNoRules(t *testing.T) {
	adjustments, final := Apply(12345, nil)
	assert.Empty(t, adjustments)
	assert.Equal(t, int64(12345), final)
}

func TestApplyDeterministic(t *testing.T) {
	rules := []ruledomain.PricingRule{
		percentRule(1, "a", 7.5),
		fixedAmountRule(2, "b", 137),
		percentRule(3, "c", 12.25),
	}

	first, firstFinal := Apply(98765, rules)
	second, secondFinal := Apply(98765, rules)

	assert.Equal(t, first, second)
	assert.Equal(t, firstFinal, secondFinal)
}
