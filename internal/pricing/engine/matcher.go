// Package engine implements rule matching and discount application as pure
// functions. Nothing in here touches storage or mutates its inputs, which is
// what keeps the quote simulator repeatable.
package engine

import (
	"sort"
	"strings"
	"time"

	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
)

// MatchContext carries the per-request facts a rule is checked against.
type MatchContext struct {
	ProductID string
	Category  string
	Quantity  int64
	Segments  []string
	AsOf      time.Time
}

// SkippedRule records a rule excluded for being malformed, so callers can
// log it without the matcher taking a logger dependency.
type SkippedRule struct {
	Rule   ruledomain.PricingRule
	Reason error
}

// Match returns the rules eligible for the request, ordered by priority
// descending with ties broken by rule ID ascending. The tie-break makes the
// adjustment trail deterministic across runs; sorting on priority alone
// would leave equal-priority rules in storage order.
//
// A malformed rule is skipped rather than failing the whole match: one bad
// definition must not block quoting for every customer.
func Match(ctx MatchContext, rules []ruledomain.PricingRule) (eligible []ruledomain.PricingRule, skipped []SkippedRule) {
	segments := make(map[string]struct{}, len(ctx.Segments))
	for _, seg := range ctx.Segments {
		segments[strings.ToLower(strings.TrimSpace(seg))] = struct{}{}
	}

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			skipped = append(skipped, SkippedRule{Rule: rule, Reason: err})
			continue
		}
		if !rule.Active {
			continue
		}
		if !rule.InValidityWindow(ctx.AsOf) {
			continue
		}
		if rule.UsageExhausted() {
			continue
		}
		if !scopeMatches(&rule, ctx.ProductID, ctx.Category) {
			continue
		}
		if rule.MinQuantity != nil && ctx.Quantity < *rule.MinQuantity {
			continue
		}
		if !segmentsMatch(&rule, segments) {
			continue
		}
		eligible = append(eligible, rule)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].ID < eligible[j].ID
	})

	return eligible, skipped
}

func scopeMatches(rule *ruledomain.PricingRule, productID, category string) bool {
	switch rule.ScopeType {
	case ruledomain.ScopeAllProducts:
		return true
	case ruledomain.ScopeProductIDs:
		for _, id := range rule.ProductIDs {
			if id == productID {
				return true
			}
		}
		return false
	case ruledomain.ScopeCategories:
		for _, c := range rule.Categories {
			if strings.EqualFold(c, category) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// segmentsMatch treats an empty rule segment set as "all customers".
func segmentsMatch(rule *ruledomain.PricingRule, segments map[string]struct{}) bool {
	if len(rule.CustomerSegments) == 0 {
		return true
	}
	for _, seg := range rule.CustomerSegments {
		if _, ok := segments[strings.ToLower(seg)]; ok {
			return true
		}
	}
	return false
}
