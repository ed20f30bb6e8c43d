package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dotmac/tariff/internal/orgcontext"
	productdomain "github.com/dotmac/tariff/internal/product/domain"
	"github.com/dotmac/tariff/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  productdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  productdomain.Repository
}

func New(p Params) productdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req productdomain.CreateRequest) (*productdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, productdomain.ErrInvalidOrganization
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, productdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, productdomain.ErrInvalidName
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, productdomain.ErrInvalidCategory
	}
	if req.BasePriceCents < 0 {
		return nil, productdomain.ErrInvalidBasePrice
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	entity := &productdomain.Product{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		Code:           code,
		Name:           name,
		Description:    req.Description,
		Category:       category,
		BasePriceCents: req.BasePriceCents,
		Currency:       currency,
		Active:         active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Metadata != nil {
		entity.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, productdomain.ErrDuplicateCode
		}
		return nil, err
	}

	return toResponse(entity), nil
}

func (s *Service) List(ctx context.Context) ([]productdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, productdomain.ErrInvalidOrganization
	}

	items, err := s.repo.FindAll(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]productdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}

	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*productdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, productdomain.ErrInvalidOrganization
	}

	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, productdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, productID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, productdomain.ErrNotFound
	}

	return toResponse(entity), nil
}

func toResponse(p *productdomain.Product) *productdomain.Response {
	resp := &productdomain.Response{
		ID:             p.ID.String(),
		OrganizationID: p.OrgID.String(),
		Code:           p.Code,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		BasePriceCents: p.BasePriceCents,
		Currency:       p.Currency,
		Active:         p.Active,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.Metadata != nil {
		resp.Metadata = map[string]any(p.Metadata)
	}
	return resp
}
