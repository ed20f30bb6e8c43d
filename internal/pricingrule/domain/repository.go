package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows rule listings. Limit is exclusive of the extra row
// fetched to detect further pages.
type ListFilter struct {
	Active   *bool
	AfterID  snowflake.ID
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*PricingRule, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]PricingRule, error)
	// FindActive returns active rules whose validity window covers asOf.
	// The matcher re-checks every eligibility criterion; this is a coarse
	// database-side cut.
	FindActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID, asOf time.Time) ([]PricingRule, error)
	Update(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool) (bool, error)
	// IncrementUsage bumps current_uses by one, guarded so the counter can
	// never pass max_uses even under concurrent commits. Returns
	// ErrUsageLimitExceeded when the cap is already reached.
	IncrementUsage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
}
