package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ruledomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *ruledomain.PricingRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ruledomain.PricingRule, error) {
	var rule ruledomain.PricingRule
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ruledomain.ListFilter) ([]ruledomain.PricingRule, error) {
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		// One extra row signals a further page.
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var items []ruledomain.PricingRule
	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID, asOf time.Time) ([]ruledomain.PricingRule, error) {
	var items []ruledomain.PricingRule
	err := db.WithContext(ctx).
		Where("org_id = ? AND active = ?", orgID, true).
		Where("starts_at IS NULL OR starts_at <= ?", asOf).
		Where("ends_at IS NULL OR ends_at > ?", asOf).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rule *ruledomain.PricingRule) error {
	return db.WithContext(ctx).Save(rule).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool) (bool, error) {
	result := db.WithContext(ctx).
		Model(&ruledomain.PricingRule{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(map[string]any{
			"active":     active,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementUsage relies on a conditional UPDATE so that two concurrent
// commits cannot both take the final use of a capped rule.
func (r *repo) IncrementUsage(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE pricing_rules
		 SET current_uses = current_uses + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND (max_uses IS NULL OR current_uses < max_uses)`,
		time.Now().UTC(),
		orgID,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ruledomain.ErrUsageLimitExceeded
	}
	return nil
}
