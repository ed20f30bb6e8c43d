package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/dotmac/tariff/internal/customer/domain"
	"github.com/dotmac/tariff/internal/orgcontext"
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
	Repo  customerdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  customerdomain.Repository
}

func New(p Params) customerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req customerdomain.CreateRequest) (*customerdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, customerdomain.ErrInvalidOrganization
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, customerdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, customerdomain.ErrInvalidName
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	entity := &customerdomain.Customer{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Code:      code,
		Name:      name,
		Email:     req.Email,
		Segments:  datatypes.NewJSONSlice(normalizeSegments(req.Segments)),
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, customerdomain.ErrDuplicateCode
		}
		return nil, err
	}

	return toResponse(entity), nil
}

func (s *Service) List(ctx context.Context) ([]customerdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, customerdomain.ErrInvalidOrganization
	}

	items, err := s.repo.FindAll(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]customerdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*customerdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, customerdomain.ErrInvalidOrganization
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, customerdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, customerdomain.ErrNotFound
	}

	return toResponse(entity), nil
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

func toResponse(c *customerdomain.Customer) *customerdomain.Response {
	return &customerdomain.Response{
		ID:             c.ID.String(),
		OrganizationID: c.OrgID.String(),
		Code:           c.Code,
		Name:           c.Name,
		Email:          c.Email,
		Segments:       []string(c.Segments),
		Active:         c.Active,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
