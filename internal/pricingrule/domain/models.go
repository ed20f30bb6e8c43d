package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ScopeType selects what a rule applies to. The three scopes are mutually
// exclusive: an ALL_PRODUCTS rule must carry empty product and category sets.
type ScopeType string

var (
	ScopeAllProducts ScopeType = "ALL_PRODUCTS"
	ScopeProductIDs  ScopeType = "PRODUCT_IDS"
	ScopeCategories  ScopeType = "CATEGORIES"
)

// DiscountType selects how a rule adjusts the running price.
type DiscountType string

var (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountFixedPrice  DiscountType = "FIXED_PRICE"
)

// PricingRule is a discount rule evaluated during quote calculation.
//
// Exactly one of PercentOff / AmountCents is set depending on DiscountType.
// Deactivated rules are retained for audit history and excluded from
// matching; they are never hard-deleted.
type PricingRule struct {
	ID               snowflake.ID                `json:"id" gorm:"primaryKey"`
	OrgID            snowflake.ID                `json:"organization_id" gorm:"column:org_id;not null;index:ux_pricing_rules_org_code,unique,priority:1"`
	Code             string                      `json:"code" gorm:"type:text;not null;index:ux_pricing_rules_org_code,unique,priority:2"`
	Name             string                      `json:"name" gorm:"type:text;not null"`
	Description      string                      `json:"description" gorm:"type:text"`
	ScopeType        ScopeType                   `json:"scope_type" gorm:"type:text;not null"`
	ProductIDs       datatypes.JSONSlice[string] `json:"product_ids" gorm:"type:jsonb"`
	Categories       datatypes.JSONSlice[string] `json:"categories" gorm:"type:jsonb"`
	CustomerSegments datatypes.JSONSlice[string] `json:"customer_segments" gorm:"type:jsonb"`
	MinQuantity      *int64                      `json:"min_quantity,omitempty"`
	DiscountType     DiscountType                `json:"discount_type" gorm:"type:text;not null"`
	PercentOff       *float64                    `json:"percent_off,omitempty" gorm:"type:numeric"`
	AmountCents      *int64                      `json:"amount_cents,omitempty"`
	StartsAt         *time.Time                  `json:"starts_at,omitempty"`
	EndsAt           *time.Time                  `json:"ends_at,omitempty"`
	MaxUses          *int64                      `json:"max_uses,omitempty"`
	CurrentUses      int64                       `json:"current_uses" gorm:"not null;default:0"`
	Priority         int                         `json:"priority" gorm:"not null;default:100"`
	Active           bool                        `json:"active" gorm:"not null;default:true;index"`
	CreatedAt        time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PricingRule) TableName() string { return "pricing_rules" }

// Validate reports whether the rule definition satisfies the model
// invariants. Malformed rules are skipped during matching so a single bad
// definition never blocks quoting.
func (r *PricingRule) Validate() error {
	switch r.ScopeType {
	case ScopeAllProducts:
		if len(r.ProductIDs) > 0 || len(r.Categories) > 0 {
			return ErrScopeNotExclusive
		}
	case ScopeProductIDs:
		if len(r.ProductIDs) == 0 {
			return ErrEmptyScope
		}
		if len(r.Categories) > 0 {
			return ErrScopeNotExclusive
		}
	case ScopeCategories:
		if len(r.Categories) == 0 {
			return ErrEmptyScope
		}
		if len(r.ProductIDs) > 0 {
			return ErrScopeNotExclusive
		}
	default:
		return ErrInvalidScopeType
	}

	switch r.DiscountType {
	case DiscountPercentage:
		if r.PercentOff == nil || r.AmountCents != nil {
			return ErrInvalidDiscountValue
		}
		if *r.PercentOff < 0 || *r.PercentOff > 100 {
			return ErrPercentOutOfRange
		}
	case DiscountFixedAmount, DiscountFixedPrice:
		if r.AmountCents == nil || r.PercentOff != nil {
			return ErrInvalidDiscountValue
		}
		if *r.AmountCents < 0 {
			return ErrInvalidDiscountValue
		}
	default:
		return ErrInvalidDiscountType
	}

	if r.StartsAt != nil && r.EndsAt != nil && r.StartsAt.After(*r.EndsAt) {
		return ErrInvalidValidity
	}
	if r.MinQuantity != nil && *r.MinQuantity < 1 {
		return ErrInvalidMinQuantity
	}
	if r.MaxUses != nil && *r.MaxUses < 1 {
		return ErrInvalidMaxUses
	}

	return nil
}

// InValidityWindow reports whether asOf falls inside the half-open
// [StartsAt, EndsAt) interval. Absent bounds are unbounded.
func (r *PricingRule) InValidityWindow(asOf time.Time) bool {
	if r.StartsAt != nil && asOf.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && !asOf.Before(*r.EndsAt) {
		return false
	}
	return true
}

// UsageExhausted reports whether the usage cap has been reached.
func (r *PricingRule) UsageExhausted() bool {
	return r.MaxUses != nil && r.CurrentUses >= *r.MaxUses
}
