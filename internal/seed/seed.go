// Package seed provisions a small demo catalog so a fresh install can
// quote prices immediately.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/dotmac/tariff/internal/customer/domain"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	productdomain "github.com/dotmac/tariff/internal/product/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsureDemoCatalog inserts demo products, customers and pricing rules for
// the given organization. Existing rows are left untouched, so it is safe
// to run on every startup.
func EnsureDemoCatalog(db *gorm.DB, node *snowflake.Node, log *zap.Logger, orgID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	org := snowflake.ParseInt64(orgID)
	ctx := context.Background()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := ensureProducts(ctx, tx, node, org)
		if err != nil {
			return err
		}
		if err := ensureCustomers(ctx, tx, node, org); err != nil {
			return err
		}
		return ensureRules(ctx, tx, node, org, products)
	})
	if err != nil {
		return err
	}

	if log != nil {
		log.Named("seed").Info("demo catalog ready", zap.Int64("org_id", orgID))
	}
	return nil
}

func ensureProducts(ctx context.Context, tx *gorm.DB, node *snowflake.Node, org snowflake.ID) (map[string]productdomain.Product, error) {
	seeded := []productdomain.Product{
		{
			Code:           "fiber-100",
			Name:           "Fiber 100/100",
			Category:       "broadband",
			BasePriceCents: 4900,
			Currency:       "USD",
			Active:         true,
		},
		{
			Code:           "fiber-500",
			Name:           "Fiber 500/500",
			Category:       "broadband",
			BasePriceCents: 7900,
			Currency:       "USD",
			Active:         true,
		},
		{
			Code:           "static-ip",
			Name:           "Static IPv4 Address",
			Category:       "addons",
			BasePriceCents: 500,
			Currency:       "USD",
			Active:         true,
		},
		{
			Code:           "managed-router",
			Name:           "Managed Router Rental",
			Category:       "equipment",
			BasePriceCents: 1000,
			Currency:       "USD",
			Active:         true,
		},
	}

	byCode := make(map[string]productdomain.Product, len(seeded))
	for _, p := range seeded {
		var existing productdomain.Product
		err := tx.WithContext(ctx).
			Where("org_id = ? AND code = ?", org, p.Code).
			First(&existing).Error
		if err == nil {
			byCode[p.Code] = existing
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		p.ID = node.Generate()
		p.OrgID = org
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
		if err := tx.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, err
		}
		byCode[p.Code] = p
	}
	return byCode, nil
}

func ensureCustomers(ctx context.Context, tx *gorm.DB, node *snowflake.Node, org snowflake.ID) error {
	seeded := []customerdomain.Customer{
		{
			Code:     "acme-corp",
			Name:     "Acme Corp",
			Segments: datatypes.NewJSONSlice([]string{"business", "loyalty"}),
			Active:   true,
		},
		{
			Code:     "jane-doe",
			Name:     "Jane Doe",
			Segments: datatypes.NewJSONSlice([]string{"residential"}),
			Active:   true,
		},
	}

	for _, c := range seeded {
		var existing customerdomain.Customer
		err := tx.WithContext(ctx).
			Where("org_id = ? AND code = ?", org, c.Code).
			First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		c.ID = node.Generate()
		c.OrgID = org
		c.CreatedAt = time.Now().UTC()
		c.UpdatedAt = c.CreatedAt
		if err := tx.WithContext(ctx).Create(&c).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureRules(ctx context.Context, tx *gorm.DB, node *snowflake.Node, org snowflake.ID, products map[string]productdomain.Product) error {
	loyaltyPercent := 10.0
	promoPercent := 10.0
	bulkAmount := int64(500)
	bulkMinQty := int64(5)
	launchPrice := int64(5900)
	launchMaxUses := int64(100)

	seeded := []ruledomain.PricingRule{
		{
			Code:             "loyalty-discount",
			Name:             "Loyalty Discount",
			ScopeType:        ruledomain.ScopeAllProducts,
			CustomerSegments: datatypes.NewJSONSlice([]string{"loyalty"}),
			DiscountType:     ruledomain.DiscountPercentage,
			PercentOff:       &loyaltyPercent,
			Priority:         10,
			Active:           true,
		},
		{
			Code:         "broadband-promo",
			Name:         "Broadband Promo",
			ScopeType:    ruledomain.ScopeCategories,
			Categories:   datatypes.NewJSONSlice([]string{"broadband"}),
			DiscountType: ruledomain.DiscountPercentage,
			PercentOff:   &promoPercent,
			Priority:     5,
			Active:       true,
		},
		{
			Code:         "bulk-addon-discount",
			Name:         "Bulk Add-on Discount",
			ScopeType:    ruledomain.ScopeCategories,
			Categories:   datatypes.NewJSONSlice([]string{"addons"}),
			MinQuantity:  &bulkMinQty,
			DiscountType: ruledomain.DiscountFixedAmount,
			AmountCents:  &bulkAmount,
			Priority:     20,
			Active:       true,
		},
	}

	if fiber, ok := products["fiber-500"]; ok {
		seeded = append(seeded, ruledomain.PricingRule{
			Code:         "fiber-500-launch",
			Name:         "Fiber 500 Launch Price",
			ScopeType:    ruledomain.ScopeProductIDs,
			ProductIDs:   datatypes.NewJSONSlice([]string{fiber.ID.String()}),
			DiscountType: ruledomain.DiscountFixedPrice,
			AmountCents:  &launchPrice,
			MaxUses:      &launchMaxUses,
			Priority:     50,
			Active:       true,
		})
	}

	for _, r := range seeded {
		var existing ruledomain.PricingRule
		err := tx.WithContext(ctx).
			Where("org_id = ? AND code = ?", org, r.Code).
			First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		r.ID = node.Generate()
		r.OrgID = org
		r.CreatedAt = time.Now().UTC()
		r.UpdatedAt = r.CreatedAt
		if err := r.Validate(); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&r).Error; err != nil {
			return err
		}
	}
	return nil
}
