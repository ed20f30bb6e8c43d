package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/dotmac/tariff/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() productdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *productdomain.Product) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*productdomain.Product, error) {
	var p productdomain.Product
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]productdomain.Product, error) {
	var items []productdomain.Product
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
