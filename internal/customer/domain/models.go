package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Customer holds the segment memberships consulted during rule matching
// when a quote request does not carry explicit segments.
type Customer struct {
	ID        snowflake.ID                `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID                `json:"organization_id" gorm:"column:org_id;not null;index:ux_customers_org_code,unique,priority:1"`
	Code      string                      `json:"code" gorm:"type:text;not null;index:ux_customers_org_code,unique,priority:2"`
	Name      string                      `json:"name" gorm:"type:text;not null"`
	Email     *string                     `json:"email,omitempty" gorm:"type:text"`
	Segments  datatypes.JSONSlice[string] `json:"segments" gorm:"type:jsonb"`
	Active    bool                        `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Customer) TableName() string { return "customers" }
