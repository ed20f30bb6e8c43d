package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Product is a sellable catalog entry. Prices are integer minor units to
// avoid floating-point rounding drift.
type Product struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index:ux_products_org_code,unique,priority:1"`
	Code           string            `json:"code" gorm:"type:text;not null;index:ux_products_org_code,unique,priority:2"`
	Name           string            `json:"name" gorm:"type:text;not null"`
	Description    *string           `json:"description,omitempty" gorm:"type:text"`
	Category       string            `json:"category" gorm:"type:text;not null;index"`
	BasePriceCents int64             `json:"base_price_cents" gorm:"not null"`
	Currency       string            `json:"currency" gorm:"type:text;not null;default:USD"`
	Active         bool              `json:"active" gorm:"not null;default:true"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }
