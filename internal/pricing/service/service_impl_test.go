package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dotmac/tariff/internal/clock"
	"github.com/dotmac/tariff/internal/config"
	customerdomain "github.com/dotmac/tariff/internal/customer/domain"
	customerrepo "github.com/dotmac/tariff/internal/customer/repository"
	"github.com/dotmac/tariff/internal/orgcontext"
	pricingdomain "github.com/dotmac/tariff/internal/pricing/domain"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	rulerepo "github.com/dotmac/tariff/internal/pricingrule/repository"
	productdomain "github.com/dotmac/tariff/internal/product/domain"
	productrepo "github.com/dotmac/tariff/internal/product/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type pricingFixture struct {
	svc      pricingdomain.Service
	db       *gorm.DB
	node     *snowflake.Node
	orgID    snowflake.ID
	clock    *clock.FakeClock
	product  productdomain.Product
	customer customerdomain.Customer
}

func setupPricing(t *testing.T) *pricingFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&productdomain.Product{},
		&customerdomain.Customer{},
		&ruledomain.PricingRule{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orgID := node.Generate()

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	pricingCfg, err := config.NewPricingConfigHolder()
	require.NoError(t, err)

	product := productdomain.Product{
		ID:             node.Generate(),
		OrgID:          orgID,
		Code:           "fiber-500",
		Name:           "Fiber 500/500",
		Category:       "broadband",
		BasePriceCents: 7900,
		Currency:       "USD",
		Active:         true,
	}
	require.NoError(t, db.Create(&product).Error)

	customer := customerdomain.Customer{
		ID:       node.Generate(),
		OrgID:    orgID,
		Code:     "acme",
		Name:     "Acme Corp",
		Segments: datatypes.NewJSONSlice([]string{"loyalty"}),
		Active:   true,
	}
	require.NoError(t, db.Create(&customer).Error)

	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Clock:        fake,
		PricingCfg:   pricingCfg,
		RuleRepo:     rulerepo.Provide(),
		ProductRepo:  productrepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
	})

	return &pricingFixture{
		svc:      svc,
		db:       db,
		node:     node,
		orgID:    orgID,
		clock:    fake,
		product:  product,
		customer: customer,
	}
}

func (f *pricingFixture) ctx() context.Context {
	return orgcontext.WithOrgID(context.Background(), f.orgID.Int64())
}

func (f *pricingFixture) createRule(t *testing.T, mutate func(*ruledomain.PricingRule)) ruledomain.PricingRule {
	t.Helper()

	percent := 10.0
	rule := ruledomain.PricingRule{
		ID:           f.node.Generate(),
		OrgID:        f.orgID,
		Code:         fmt.Sprintf("rule-%d", f.node.Generate()),
		Name:         "Test Rule",
		ScopeType:    ruledomain.ScopeAllProducts,
		DiscountType: ruledomain.DiscountPercentage,
		PercentOff:   &percent,
		Priority:     100,
		Active:       true,
	}
	if mutate != nil {
		mutate(&rule)
	}
	require.NoError(t, f.db.Create(&rule).Error)
	return rule
}

func TestCalculateNoRules(t *testing.T) {
	f := setupPricing(t)

	result, err := f.svc.Calculate(f.ctx(), pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  2,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(15800), result.SubtotalCents)
	assert.Equal(t, int64(15800), result.FinalPriceCents)
	assert.Empty(t, result.Adjustments)
	assert.Empty(t, result.QuoteID)
	assert.False(t, result.Committed)
}

func TestCalculateAppliesMatchingRules(t *testing.T) {
	f := setupPricing(t)

	f.createRule(t, func(r *ruledomain.PricingRule) {
		r.Code = "broadband-promo"
		r.Priority = 5
	})
	f.createRule(t, func(r *ruledomain.PricingRule) {
		r.Code = "loyalty"
		r.CustomerSegments = datatypes.NewJSONSlice([]string{"loyalty"})
		r.Priority = 10
	})

	result, err := f.svc.Calculate(f.ctx(), pricingdomain.CalculationRequest{
		ProductID:  f.product.ID.String(),
		CustomerID: f.customer.ID.String(),
		Quantity:   1,
	})
	require.NoError(t, err)

	require.Len(t, result.Adjustments, 2)
	assert.Equal(t, "loyalty", result.Adjustments[0].RuleCode)
	assert.Equal(t, "broadband-promo", result.Adjustments[1].RuleCode)

	// 7900 -> 7110 -> 6399
	assert.Equal(t, int64(7110), result.Adjustments[0].PriceAfterCents)
	assert.Equal(t, int64(6399), result.FinalPriceCents)
	assert.Equal(t, int64(1501), result.TotalDiscountCents)
}

func TestCalculateIsRepeatable(t *testing.T) {
	f := setupPricing(t)

	maxUses := int64(1)
	f.createRule(t, func(r *ruledomain.PricingRule) {
		r.MaxUses = &maxUses
	})

	req := pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  1,
	}

	first, err := f.svc.Calculate(f.ctx(), req)
	require.NoError(t, err)
	second, err := f.svc.Calculate(f.ctx(), req)
	require.NoError(t, err)

	// Simulation consumes nothing, so the capped rule applies both times.
	assert.Equal(t, first.FinalPriceCents, second.FinalPriceCents)
	assert.Len(t, second.Adjustments, 1)
}

func TestCalculateValidation(t *testing.T) {
	f := setupPricing(t)

	_, err := f.svc.Calculate(f.ctx(), pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  0,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidQuantity)

	_, err = f.svc.Calculate(f.ctx(), pricingdomain.CalculationRequest{
		ProductID: f.node.Generate().String(),
		Quantity:  1,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrProductNotFound)

	_, err = f.svc.Calculate(context.Background(), pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  1,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidOrganization)
}

func TestCommitConsumesUsage(t *testing.T) {
	f := setupPricing(t)

	maxUses := int64(2)
	rule := f.createRule(t, func(r *ruledomain.PricingRule) {
		r.MaxUses = &maxUses
	})

	req := pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  1,
	}

	first, err := f.svc.Commit(f.ctx(), req)
	require.NoError(t, err)
	assert.True(t, first.Committed)
	assert.NotEmpty(t, first.QuoteID)
	assert.Len(t, first.Adjustments, 1)

	second, err := f.svc.Commit(f.ctx(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.QuoteID, second.QuoteID)

	var stored ruledomain.PricingRule
	require.NoError(t, f.db.First(&stored, "id = ?", rule.ID).Error)
	assert.Equal(t, int64(2), stored.CurrentUses)

	// Budget exhausted: the rule no longer matches, the quote goes through
	// at full price.
	third, err := f.svc.Commit(f.ctx(), req)
	require.NoError(t, err)
	assert.Empty(t, third.Adjustments)
	assert.Equal(t, int64(7900), third.FinalPriceCents)
}

// staleRuleRepo serves one stale snapshot before delegating to storage,
// simulating a concurrent commit taking the last use between matching and
// the usage increment.
type staleRuleRepo struct {
	ruledomain.Repository
	stale  ruledomain.PricingRule
	served bool
}

func (r *staleRuleRepo) FindActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID, asOf time.Time) ([]ruledomain.PricingRule, error) {
	if !r.served {
		r.served = true
		return []ruledomain.PricingRule{r.stale}, nil
	}
	return r.Repository.FindActive(ctx, db, orgID, asOf)
}

func TestCommitRetriesWhenCapRaces(t *testing.T) {
	f := setupPricing(t)

	maxUses := int64(1)
	rule := f.createRule(t, func(r *ruledomain.PricingRule) {
		r.MaxUses = &maxUses
		r.CurrentUses = 1
	})

	stale := rule
	stale.CurrentUses = 0

	pricingCfg, err := config.NewPricingConfigHolder()
	require.NoError(t, err)

	svc := New(Params{
		DB:         f.db,
		Log:        zap.NewNop(),
		Clock:      f.clock,
		PricingCfg: pricingCfg,
		RuleRepo: &staleRuleRepo{
			Repository: rulerepo.Provide(),
			stale:      stale,
		},
		ProductRepo:  productrepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
	})

	result, err := svc.Commit(f.ctx(), pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  1,
	})
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Empty(t, result.Adjustments)
	assert.Equal(t, int64(7900), result.FinalPriceCents)
}

func TestCalculateUsesAsOf(t *testing.T) {
	f := setupPricing(t)

	endsAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f.createRule(t, func(r *ruledomain.PricingRule) {
		r.Code = "january-promo"
		r.EndsAt = &endsAt
	})

	// The fake clock sits in March, past the window.
	current, err := f.svc.Calculate(f.ctx(), pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  1,
	})
	require.NoError(t, err)
	assert.Empty(t, current.Adjustments)

	asOf := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	back, err := f.svc.Calculate(f.ctx(), pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  1,
		AsOf:      &asOf,
	})
	require.NoError(t, err)
	assert.Len(t, back.Adjustments, 1)
}

func TestCalculateMalformedRuleSkipped(t *testing.T) {
	f := setupPricing(t)

	f.createRule(t, func(r *ruledomain.PricingRule) {
		r.Code = "broken"
		r.PercentOff = nil
	})
	f.createRule(t, func(r *ruledomain.PricingRule) {
		r.Code = "healthy"
	})

	result, err := f.svc.Calculate(f.ctx(), pricingdomain.CalculationRequest{
		ProductID: f.product.ID.String(),
		Quantity:  1,
	})
	require.NoError(t, err)

	require.Len(t, result.Adjustments, 1)
	assert.Equal(t, "healthy", result.Adjustments[0].RuleCode)
}
