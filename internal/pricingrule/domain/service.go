package domain

import (
	"context"
	"errors"
	"time"

	"github.com/dotmac/tariff/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Response, error)
	Activate(ctx context.Context, id string) (*Response, error)
	Deactivate(ctx context.Context, id string) (*Response, error)
}

type CreateRequest struct {
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	ScopeType        ScopeType  `json:"scope_type"`
	ProductIDs       []string   `json:"product_ids"`
	Categories       []string   `json:"categories"`
	CustomerSegments []string   `json:"customer_segments"`
	MinQuantity      *int64     `json:"min_quantity"`
	DiscountType     DiscountType `json:"discount_type"`
	PercentOff       *float64   `json:"percent_off"`
	AmountCents      *int64     `json:"amount_cents"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	MaxUses          *int64     `json:"max_uses"`
	Priority         *int       `json:"priority"`
	Active           *bool      `json:"active"`
}

// UpdateRequest carries full replacements for the mutable rule fields.
// Usage counters are never edited through this path.
type UpdateRequest struct {
	Name             *string      `json:"name"`
	Description      *string      `json:"description"`
	ScopeType        *ScopeType   `json:"scope_type"`
	ProductIDs       []string     `json:"product_ids"`
	Categories       []string     `json:"categories"`
	CustomerSegments []string     `json:"customer_segments"`
	MinQuantity      *int64       `json:"min_quantity"`
	DiscountType     *DiscountType `json:"discount_type"`
	PercentOff       *float64     `json:"percent_off"`
	AmountCents      *int64       `json:"amount_cents"`
	StartsAt         *time.Time   `json:"starts_at"`
	EndsAt           *time.Time   `json:"ends_at"`
	MaxUses          *int64       `json:"max_uses"`
	Priority         *int         `json:"priority"`
}

type ListRequest struct {
	Active    *bool
	PageToken string
	PageSize  int
}

type ListResponse struct {
	Rules    []Response           `json:"rules"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type Response struct {
	ID               string       `json:"id"`
	OrganizationID   string       `json:"organization_id"`
	Code             string       `json:"code"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	ScopeType        ScopeType    `json:"scope_type"`
	ProductIDs       []string     `json:"product_ids,omitempty"`
	Categories       []string     `json:"categories,omitempty"`
	CustomerSegments []string     `json:"customer_segments,omitempty"`
	MinQuantity      *int64       `json:"min_quantity,omitempty"`
	DiscountType     DiscountType `json:"discount_type"`
	PercentOff       *float64     `json:"percent_off,omitempty"`
	AmountCents      *int64       `json:"amount_cents,omitempty"`
	StartsAt         *time.Time   `json:"starts_at,omitempty"`
	EndsAt           *time.Time   `json:"ends_at,omitempty"`
	MaxUses          *int64       `json:"max_uses,omitempty"`
	CurrentUses      int64        `json:"current_uses"`
	Priority         int          `json:"priority"`
	Active           bool         `json:"active"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidScopeType     = errors.New("invalid_scope_type")
	ErrEmptyScope           = errors.New("empty_scope")
	ErrScopeNotExclusive    = errors.New("scope_not_exclusive")
	ErrInvalidDiscountType  = errors.New("invalid_discount_type")
	ErrInvalidDiscountValue = errors.New("invalid_discount_value")
	ErrPercentOutOfRange    = errors.New("percent_out_of_range")
	ErrInvalidValidity      = errors.New("invalid_validity_window")
	ErrInvalidMinQuantity   = errors.New("invalid_min_quantity")
	ErrInvalidMaxUses       = errors.New("invalid_max_uses")
	ErrInvalidPriority      = errors.New("invalid_priority")
	ErrDuplicateCode        = errors.New("duplicate_code")
	ErrInvalidID            = errors.New("invalid_id")
	ErrNotFound             = errors.New("not_found")
	ErrUsageLimitExceeded   = errors.New("usage_limit_exceeded")
)
