package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dotmac/tariff/internal/config"
	"github.com/dotmac/tariff/internal/orgcontext"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	"github.com/dotmac/tariff/internal/pricingrule/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupRuleService(t *testing.T) (ruledomain.Service, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&ruledomain.PricingRule{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orgID := node.Generate()

	pricingCfg, err := config.NewPricingConfigHolder()
	require.NoError(t, err)

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		PricingCfg: pricingCfg,
	})

	return svc, orgID
}

func orgCtx(orgID snowflake.ID) context.Context {
	return orgcontext.WithOrgID(context.Background(), orgID.Int64())
}

func percentCreate(name string, percent float64) ruledomain.CreateRequest {
	return ruledomain.CreateRequest{
		Name:         name,
		ScopeType:    ruledomain.ScopeAllProducts,
		DiscountType: ruledomain.DiscountPercentage,
		PercentOff:   &percent,
	}
}

func TestCreateDefaultsCodeAndPriority(t *testing.T) {
	svc, orgID := setupRuleService(t)

	resp, err := svc.Create(orgCtx(orgID), percentCreate("Loyalty Discount", 10))
	require.NoError(t, err)

	assert.Equal(t, "loyalty-discount", resp.Code)
	assert.Equal(t, 100, resp.Priority)
	assert.True(t, resp.Active)
	assert.Equal(t, int64(0), resp.CurrentUses)
}

func TestCreateClampsPriority(t *testing.T) {
	svc, orgID := setupRuleService(t)

	tooHigh := 5000
	req := percentCreate("High", 10)
	req.Priority = &tooHigh
	resp, err := svc.Create(orgCtx(orgID), req)
	require.NoError(t, err)
	assert.Equal(t, 1000, resp.Priority)

	tooLow := -7
	req = percentCreate("Low", 10)
	req.Priority = &tooLow
	resp, err = svc.Create(orgCtx(orgID), req)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Priority)
}

func TestCreateValidation(t *testing.T) {
	svc, orgID := setupRuleService(t)
	ctx := orgCtx(orgID)

	_, err := svc.Create(ctx, percentCreate("", 10))
	assert.ErrorIs(t, err, ruledomain.ErrInvalidName)

	outOfRange := percentCreate("Too Much", 150)
	_, err = svc.Create(ctx, outOfRange)
	assert.ErrorIs(t, err, ruledomain.ErrPercentOutOfRange)

	amount := int64(500)
	conflicting := percentCreate("Conflicting", 10)
	conflicting.AmountCents = &amount
	_, err = svc.Create(ctx, conflicting)
	assert.ErrorIs(t, err, ruledomain.ErrInvalidDiscountValue)

	missing := percentCreate("Missing", 10)
	missing.PercentOff = nil
	_, err = svc.Create(ctx, missing)
	assert.ErrorIs(t, err, ruledomain.ErrInvalidDiscountValue)

	mixedScope := percentCreate("Mixed Scope", 10)
	mixedScope.ScopeType = ruledomain.ScopeProductIDs
	mixedScope.ProductIDs = []string{"1"}
	mixedScope.Categories = []string{"broadband"}
	_, err = svc.Create(ctx, mixedScope)
	assert.ErrorIs(t, err, ruledomain.ErrScopeNotExclusive)

	emptyScope := percentCreate("Empty Scope", 10)
	emptyScope.ScopeType = ruledomain.ScopeProductIDs
	_, err = svc.Create(ctx, emptyScope)
	assert.ErrorIs(t, err, ruledomain.ErrEmptyScope)

	starts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ends := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	backwards := percentCreate("Backwards", 10)
	backwards.StartsAt = &starts
	backwards.EndsAt = &ends
	_, err = svc.Create(ctx, backwards)
	assert.ErrorIs(t, err, ruledomain.ErrInvalidValidity)

	_, err = svc.Create(context.Background(), percentCreate("No Org", 10))
	assert.ErrorIs(t, err, ruledomain.ErrInvalidOrganization)
}

func TestCreateDuplicateCode(t *testing.T) {
	svc, orgID := setupRuleService(t)
	ctx := orgCtx(orgID)

	_, err := svc.Create(ctx, percentCreate("Same Name", 10))
	require.NoError(t, err)

	_, err = svc.Create(ctx, percentCreate("Same Name", 20))
	assert.ErrorIs(t, err, ruledomain.ErrDuplicateCode)
}

func TestUpdatePartial(t *testing.T) {
	svc, orgID := setupRuleService(t)
	ctx := orgCtx(orgID)

	created, err := svc.Create(ctx, percentCreate("Promo", 10))
	require.NoError(t, err)

	newName := "Renamed Promo"
	newPercent := 15.0
	resp, err := svc.Update(ctx, created.ID, ruledomain.UpdateRequest{
		Name:       &newName,
		PercentOff: &newPercent,
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed Promo", resp.Name)
	assert.Equal(t, 15.0, *resp.PercentOff)
	assert.Equal(t, created.Code, resp.Code)

	// Switching discount type replaces the whole discount definition.
	fixed := ruledomain.DiscountFixedAmount
	amount := int64(700)
	resp, err = svc.Update(ctx, created.ID, ruledomain.UpdateRequest{
		DiscountType: &fixed,
		AmountCents:  &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, ruledomain.DiscountFixedAmount, resp.DiscountType)
	assert.Nil(t, resp.PercentOff)
	assert.Equal(t, int64(700), *resp.AmountCents)
}

func TestUpdateRejectsInvalidResult(t *testing.T) {
	svc, orgID := setupRuleService(t)
	ctx := orgCtx(orgID)

	created, err := svc.Create(ctx, percentCreate("Promo", 10))
	require.NoError(t, err)

	outOfRange := 120.0
	_, err = svc.Update(ctx, created.ID, ruledomain.UpdateRequest{PercentOff: &outOfRange})
	assert.ErrorIs(t, err, ruledomain.ErrPercentOutOfRange)
}

func TestActivateDeactivate(t *testing.T) {
	svc, orgID := setupRuleService(t)
	ctx := orgCtx(orgID)

	created, err := svc.Create(ctx, percentCreate("Promo", 10))
	require.NoError(t, err)

	resp, err := svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, resp.Active)

	resp, err = svc.Activate(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, resp.Active)

	_, err = svc.Deactivate(ctx, "123456789")
	assert.ErrorIs(t, err, ruledomain.ErrNotFound)
}

func TestListPagination(t *testing.T) {
	svc, orgID := setupRuleService(t)
	ctx := orgCtx(orgID)

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, percentCreate(fmt.Sprintf("Rule %d", i), 10))
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, ruledomain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Rules, 2)
	require.NotNil(t, first.PageInfo)
	require.True(t, first.PageInfo.HasMore)

	second, err := svc.List(ctx, ruledomain.ListRequest{
		PageSize:  2,
		PageToken: first.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second.Rules, 2)
	assert.NotEqual(t, first.Rules[0].ID, second.Rules[0].ID)

	third, err := svc.List(ctx, ruledomain.ListRequest{
		PageSize:  2,
		PageToken: second.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, third.Rules, 1)
	assert.False(t, third.PageInfo.HasMore)
}

func TestListFiltersByActive(t *testing.T) {
	svc, orgID := setupRuleService(t)
	ctx := orgCtx(orgID)

	kept, err := svc.Create(ctx, percentCreate("Kept", 10))
	require.NoError(t, err)
	dropped, err := svc.Create(ctx, percentCreate("Dropped", 10))
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, dropped.ID)
	require.NoError(t, err)

	active := true
	resp, err := svc.List(ctx, ruledomain.ListRequest{Active: &active})
	require.NoError(t, err)
	require.Len(t, resp.Rules, 1)
	assert.Equal(t, kept.ID, resp.Rules[0].ID)
}

func TestGetScopedToOrganization(t *testing.T) {
	svc, orgID := setupRuleService(t)

	created, err := svc.Create(orgCtx(orgID), percentCreate("Promo", 10))
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	otherOrg := node.Generate()

	_, err = svc.Get(orgCtx(otherOrg), created.ID)
	assert.ErrorIs(t, err, ruledomain.ErrNotFound)
}
