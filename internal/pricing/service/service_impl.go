package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/dotmac/tariff/internal/clock"
	"github.com/dotmac/tariff/internal/config"
	customerdomain "github.com/dotmac/tariff/internal/customer/domain"
	obsmetrics "github.com/dotmac/tariff/internal/observability/metrics"
	"github.com/dotmac/tariff/internal/orgcontext"
	pricingdomain "github.com/dotmac/tariff/internal/pricing/domain"
	"github.com/dotmac/tariff/internal/pricing/engine"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	productdomain "github.com/dotmac/tariff/internal/product/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	PricingCfg   *config.PricingConfigHolder
	RuleRepo     ruledomain.Repository
	ProductRepo  productdomain.Repository
	CustomerRepo customerdomain.Repository
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	pricingCfg   *config.PricingConfigHolder
	ruleRepo     ruledomain.Repository
	productRepo  productdomain.Repository
	customerRepo customerdomain.Repository
	metrics      *obsmetrics.Metrics
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("pricing.service"),
		clock:        p.Clock,
		pricingCfg:   p.PricingCfg,
		ruleRepo:     p.RuleRepo,
		productRepo:  p.ProductRepo,
		customerRepo: p.CustomerRepo,
		metrics:      p.Metrics,
	}
}

func (s *Service) Calculate(ctx context.Context, req pricingdomain.CalculationRequest) (*pricingdomain.CalculationResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	result, _, err := s.calculate(ctx, orgID, req)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordQuote(ctx, orgID.String(), false)
	return result, nil
}

func (s *Service) Commit(ctx context.Context, req pricingdomain.CalculationRequest) (*pricingdomain.CalculationResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingdomain.ErrInvalidOrganization
	}

	retries := s.pricingCfg.Get().CommitRetries
	for attempt := 0; attempt < retries; attempt++ {
		result, applied, err := s.calculate(ctx, orgID, req)
		if err != nil {
			return nil, err
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, ruleID := range applied {
				if err := s.ruleRepo.IncrementUsage(ctx, tx, orgID, ruleID); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			result.QuoteID = ulid.Make().String()
			result.Committed = true
			s.metrics.RecordQuote(ctx, orgID.String(), true)
			return result, nil
		}
		if !errors.Is(err, ruledomain.ErrUsageLimitExceeded) {
			return nil, err
		}

		// A rule hit its cap between matching and commit. Fresh counters
		// will exclude it on the next pass rather than re-applying a stale
		// adjustment trail.
		s.metrics.RecordUsageCapConflict(ctx, orgID.String())
		s.log.Warn("usage cap raced during commit, re-matching",
			zap.String("org_id", orgID.String()),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, ruledomain.ErrUsageLimitExceeded
}

// calculate runs the full match + apply pipeline without side effects and
// returns the IDs of applied rules for the commit path.
func (s *Service) calculate(ctx context.Context, orgID snowflake.ID, req pricingdomain.CalculationRequest) (*pricingdomain.CalculationResult, []snowflake.ID, error) {
	if req.Quantity < 1 {
		return nil, nil, pricingdomain.ErrInvalidQuantity
	}

	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil {
		return nil, nil, pricingdomain.ErrInvalidProduct
	}

	product, err := s.productRepo.FindByID(ctx, s.db, orgID, productID)
	if err != nil {
		return nil, nil, err
	}
	if product == nil {
		return nil, nil, pricingdomain.ErrProductNotFound
	}

	segments, err := s.resolveSegments(ctx, orgID, req)
	if err != nil {
		return nil, nil, err
	}

	asOf := s.clock.Now()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	rules, err := s.ruleRepo.FindActive(ctx, s.db, orgID, asOf)
	if err != nil {
		return nil, nil, err
	}

	eligible, skipped := engine.Match(engine.MatchContext{
		ProductID: product.ID.String(),
		Category:  product.Category,
		Quantity:  req.Quantity,
		Segments:  segments,
		AsOf:      asOf,
	}, rules)

	for _, skip := range skipped {
		s.metrics.RecordRuleSkipped(ctx, skip.Reason.Error())
		s.log.Warn("skipping malformed pricing rule",
			zap.String("rule_id", skip.Rule.ID.String()),
			zap.String("rule_code", skip.Rule.Code),
			zap.Error(skip.Reason),
		)
	}

	if max := s.pricingCfg.Get().MaxRulesPerQuote; len(eligible) > max {
		eligible = eligible[:max]
	}

	subtotal := product.BasePriceCents * req.Quantity
	adjustments, finalPrice := engine.Apply(subtotal, eligible)

	applied := make([]snowflake.ID, 0, len(eligible))
	for i := range eligible {
		applied = append(applied, eligible[i].ID)
	}

	return &pricingdomain.CalculationResult{
		ProductID:          product.ID.String(),
		Currency:           product.Currency,
		Quantity:           req.Quantity,
		BasePriceCents:     product.BasePriceCents,
		SubtotalCents:      subtotal,
		Adjustments:        adjustments,
		TotalDiscountCents: subtotal - finalPrice,
		FinalPriceCents:    finalPrice,
		AsOf:               asOf,
	}, applied, nil
}

func (s *Service) resolveSegments(ctx context.Context, orgID snowflake.ID, req pricingdomain.CalculationRequest) ([]string, error) {
	if len(req.CustomerSegments) > 0 {
		return req.CustomerSegments, nil
	}

	customerRef := strings.TrimSpace(req.CustomerID)
	if customerRef == "" {
		return nil, nil
	}

	customerID, err := snowflake.ParseString(customerRef)
	if err != nil {
		return nil, pricingdomain.ErrInvalidCustomer
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, pricingdomain.ErrCustomerNotFound
	}

	return []string(customer.Segments), nil
}
