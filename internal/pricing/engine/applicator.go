package engine

import (
	"math"

	pricingdomain "github.com/dotmac/tariff/internal/pricing/domain"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
)

// Apply folds the ordered eligible rules over the subtotal and returns the
// adjustment trail with the final price.
//
// Rules stack cumulatively: each rule discounts the running price left by
// the previous rule, not the original subtotal, so 10% then 10% lands at
// 81% of subtotal rather than 80%. Every step floors at zero, and the final
// price is floored again in case of unexpected combinations.
func Apply(subtotalCents int64, rules []ruledomain.PricingRule) ([]pricingdomain.Adjustment, int64) {
	current := subtotalCents
	adjustments := make([]pricingdomain.Adjustment, 0, len(rules))

	for i := range rules {
		rule := &rules[i]
		discount := discountFor(rule, current)
		next := current - discount

		adjustments = append(adjustments, pricingdomain.Adjustment{
			RuleID:           rule.ID.String(),
			RuleCode:         rule.Code,
			RuleName:         rule.Name,
			DiscountType:     rule.DiscountType,
			PercentOff:       rule.PercentOff,
			AmountCents:      rule.AmountCents,
			PriceBeforeCents: current,
			DiscountCents:    discount,
			PriceAfterCents:  next,
		})
		current = next
	}

	if current < 0 {
		current = 0
	}
	return adjustments, current
}

func discountFor(rule *ruledomain.PricingRule, currentCents int64) int64 {
	switch rule.DiscountType {
	case ruledomain.DiscountPercentage:
		if rule.PercentOff == nil {
			return 0
		}
		return int64(math.Round(float64(currentCents) * *rule.PercentOff / 100))
	case ruledomain.DiscountFixedAmount:
		if rule.AmountCents == nil {
			return 0
		}
		if *rule.AmountCents > currentCents {
			return currentCents
		}
		return *rule.AmountCents
	case ruledomain.DiscountFixedPrice:
		if rule.AmountCents == nil {
			return 0
		}
		// A fixed price above the running price never raises it.
		if currentCents-*rule.AmountCents < 0 {
			return 0
		}
		return currentCents - *rule.AmountCents
	default:
		return 0
	}
}
