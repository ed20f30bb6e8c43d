package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/dotmac/tariff/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() customerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *customerdomain.Customer) error {
	return db.WithContext(ctx).Create(c).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*customerdomain.Customer, error) {
	var c customerdomain.Customer
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]customerdomain.Customer, error) {
	var items []customerdomain.Customer
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
