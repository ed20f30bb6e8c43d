package domain

import (
	"context"
	"errors"
	"time"

	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
)

// CalculationRequest asks for a price quote. Segments may be supplied
// inline; otherwise the customer's stored segments are used when a
// customer ID is present. AsOf defaults to the current time.
type CalculationRequest struct {
	ProductID        string     `json:"product_id"`
	CustomerID       string     `json:"customer_id"`
	Quantity         int64      `json:"quantity"`
	CustomerSegments []string   `json:"customer_segments"`
	AsOf             *time.Time `json:"as_of"`
}

// Adjustment is one step of the adjustment trail: which rule fired, what it
// was worth, and the running price on either side of it.
type Adjustment struct {
	RuleID           string                  `json:"rule_id"`
	RuleCode         string                  `json:"rule_code"`
	RuleName         string                  `json:"rule_name"`
	DiscountType     ruledomain.DiscountType `json:"discount_type"`
	PercentOff       *float64                `json:"percent_off,omitempty"`
	AmountCents      *int64                  `json:"amount_cents,omitempty"`
	PriceBeforeCents int64                   `json:"price_before_cents"`
	DiscountCents    int64                   `json:"discount_cents"`
	PriceAfterCents  int64                   `json:"price_after_cents"`
}

// CalculationResult is the quote. QuoteID is assigned only on commit;
// simulations are side-effect free and carry no reference.
type CalculationResult struct {
	QuoteID            string       `json:"quote_id,omitempty"`
	ProductID          string       `json:"product_id"`
	Currency           string       `json:"currency"`
	Quantity           int64        `json:"quantity"`
	BasePriceCents     int64        `json:"base_price_cents"`
	SubtotalCents      int64        `json:"subtotal_cents"`
	Adjustments        []Adjustment `json:"adjustments"`
	TotalDiscountCents int64        `json:"total_discount_cents"`
	FinalPriceCents    int64        `json:"final_price_cents"`
	AsOf               time.Time    `json:"as_of"`
	Committed          bool         `json:"committed"`
}

type Service interface {
	// Calculate is the simulator: deterministic for identical inputs
	// (including AsOf) and free of side effects.
	Calculate(ctx context.Context, req CalculationRequest) (*CalculationResult, error)
	// Commit calculates and then durably increments the usage counter of
	// every applied rule. When a counter races past its cap the request is
	// re-matched rather than retried with the stale adjustment trail.
	Commit(ctx context.Context, req CalculationRequest) (*CalculationResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidProduct      = errors.New("invalid_product")
	ErrProductNotFound     = errors.New("product_not_found")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrCustomerNotFound    = errors.New("customer_not_found")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrUsageLimitExceeded  = ruledomain.ErrUsageLimitExceeded
)
