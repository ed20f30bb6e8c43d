package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dotmac/tariff/internal/config"
	"github.com/dotmac/tariff/internal/orgcontext"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	"github.com/dotmac/tariff/pkg/db"
	"github.com/dotmac/tariff/pkg/db/pagination"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ruledomain.Repository
	PricingCfg *config.PricingConfigHolder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ruledomain.Repository
	pricingCfg *config.PricingConfigHolder
}

func New(p Params) ruledomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pricingrule.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		pricingCfg: p.PricingCfg,
	}
}

func (s *Service) Create(ctx context.Context, req ruledomain.CreateRequest) (*ruledomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ruledomain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ruledomain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	}

	cfg := s.pricingCfg.Get()
	priority := cfg.DefaultPriority
	if req.Priority != nil {
		priority = clampPriority(*req.Priority, cfg)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	entity := &ruledomain.PricingRule{
		ID:               s.genID.Generate(),
		OrgID:            orgID,
		Code:             code,
		Name:             name,
		Description:      strings.TrimSpace(req.Description),
		ScopeType:        req.ScopeType,
		ProductIDs:       datatypes.NewJSONSlice(trimAll(req.ProductIDs)),
		Categories:       datatypes.NewJSONSlice(trimAll(req.Categories)),
		CustomerSegments: datatypes.NewJSONSlice(normalizeSegments(req.CustomerSegments)),
		MinQuantity:      req.MinQuantity,
		DiscountType:     req.DiscountType,
		PercentOff:       req.PercentOff,
		AmountCents:      req.AmountCents,
		StartsAt:         normalizeTime(req.StartsAt),
		EndsAt:           normalizeTime(req.EndsAt),
		MaxUses:          req.MaxUses,
		CurrentUses:      0,
		Priority:         priority,
		Active:           active,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := entity.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ruledomain.ErrDuplicateCode
		}
		return nil, err
	}

	return toResponse(entity), nil
}

func (s *Service) List(ctx context.Context, req ruledomain.ListRequest) (*ruledomain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ruledomain.ErrInvalidOrganization
	}

	limit := req.PageSize
	if limit < 1 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}

	filter := ruledomain.ListFilter{Active: req.Active, Limit: limit}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, ruledomain.ErrInvalidID
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, ruledomain.ErrInvalidID
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return nil, err
	}

	pageInfo, page := pagination.BuildCursorPageInfo(items, limit, func(rule *ruledomain.PricingRule) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: rule.ID.String()})
		return token
	})

	resp := make([]ruledomain.Response, 0, len(page))
	for i := range page {
		resp = append(resp, *toResponse(&page[i]))
	}

	return &ruledomain.ListResponse{Rules: resp, PageInfo: pageInfo}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*ruledomain.Response, error) {
	entity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(entity), nil
}

func (s *Service) Update(ctx context.Context, id string, req ruledomain.UpdateRequest) (*ruledomain.Response, error) {
	entity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ruledomain.ErrInvalidName
		}
		entity.Name = name
	}
	if req.Description != nil {
		entity.Description = strings.TrimSpace(*req.Description)
	}
	if req.ScopeType != nil {
		entity.ScopeType = *req.ScopeType
	}
	if req.ProductIDs != nil {
		entity.ProductIDs = datatypes.NewJSONSlice(trimAll(req.ProductIDs))
	}
	if req.Categories != nil {
		entity.Categories = datatypes.NewJSONSlice(trimAll(req.Categories))
	}
	if req.CustomerSegments != nil {
		entity.CustomerSegments = datatypes.NewJSONSlice(normalizeSegments(req.CustomerSegments))
	}
	if req.MinQuantity != nil {
		entity.MinQuantity = req.MinQuantity
	}
	if req.DiscountType != nil {
		entity.DiscountType = *req.DiscountType
		entity.PercentOff = req.PercentOff
		entity.AmountCents = req.AmountCents
	} else {
		if req.PercentOff != nil {
			entity.PercentOff = req.PercentOff
		}
		if req.AmountCents != nil {
			entity.AmountCents = req.AmountCents
		}
	}
	if req.StartsAt != nil {
		entity.StartsAt = normalizeTime(req.StartsAt)
	}
	if req.EndsAt != nil {
		entity.EndsAt = normalizeTime(req.EndsAt)
	}
	if req.MaxUses != nil {
		entity.MaxUses = req.MaxUses
	}
	if req.Priority != nil {
		entity.Priority = clampPriority(*req.Priority, s.pricingCfg.Get())
	}
	entity.UpdatedAt = time.Now().UTC()

	if err := entity.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, s.db, entity); err != nil {
		return nil, err
	}

	return toResponse(entity), nil
}

func (s *Service) Activate(ctx context.Context, id string) (*ruledomain.Response, error) {
	return s.setActive(ctx, id, true)
}

// Deactivate is the soft-delete path: the rule drops out of matching but
// its definition and usage history remain queryable.
func (s *Service) Deactivate(ctx context.Context, id string) (*ruledomain.Response, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (*ruledomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ruledomain.ErrInvalidOrganization
	}

	ruleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	updated, err := s.repo.SetActive(ctx, s.db, orgID, ruleID, active)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ruledomain.ErrNotFound
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, ruledomain.ErrNotFound
	}

	return toResponse(entity), nil
}

func (s *Service) load(ctx context.Context, id string) (*ruledomain.PricingRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ruledomain.ErrInvalidOrganization
	}

	ruleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, ruledomain.ErrNotFound
	}
	return entity, nil
}

func clampPriority(priority int, cfg config.PricingConfig) int {
	if priority < cfg.MinPriority {
		return cfg.MinPriority
	}
	if priority > cfg.MaxPriority {
		return cfg.MaxPriority
	}
	return priority
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func normalizeSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	seen := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		seg = strings.ToLower(strings.TrimSpace(seg))
		if seg == "" {
			continue
		}
		if _, ok := seen[seg]; ok {
			continue
		}
		seen[seg] = struct{}{}
		out = append(out, seg)
	}
	return out
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func toResponse(r *ruledomain.PricingRule) *ruledomain.Response {
	return &ruledomain.Response{
		ID:               r.ID.String(),
		OrganizationID:   r.OrgID.String(),
		Code:             r.Code,
		Name:             r.Name,
		Description:      r.Description,
		ScopeType:        r.ScopeType,
		ProductIDs:       []string(r.ProductIDs),
		Categories:       []string(r.Categories),
		CustomerSegments: []string(r.CustomerSegments),
		MinQuantity:      r.MinQuantity,
		DiscountType:     r.DiscountType,
		PercentOff:       r.PercentOff,
		AmountCents:      r.AmountCents,
		StartsAt:         r.StartsAt,
		EndsAt:           r.EndsAt,
		MaxUses:          r.MaxUses,
		CurrentUses:      r.CurrentUses,
		Priority:         r.Priority,
		Active:           r.Active,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
