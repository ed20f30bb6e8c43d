package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
)

func (s *Server) CreatePricingRule(c *gin.Context) {
	var req ruledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPricingRules(c *gin.Context) {
	var query struct {
		Active    string `form:"active"`
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	pageSize := 0
	if raw := strings.TrimSpace(query.PageSize); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 0 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page size"))
			return
		}
	}

	resp, err := s.ruleSvc.List(c.Request.Context(), ruledomain.ListRequest{
		Active:    active,
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPricingRuleByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.ruleSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePricingRule(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req ruledomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivatePricingRule(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.ruleSvc.Activate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivatePricingRule(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.ruleSvc.Deactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isPricingRuleValidationError(err error) bool {
	switch err {
	case ruledomain.ErrInvalidOrganization,
		ruledomain.ErrInvalidName,
		ruledomain.ErrInvalidScopeType,
		ruledomain.ErrEmptyScope,
		ruledomain.ErrScopeNotExclusive,
		ruledomain.ErrInvalidDiscountType,
		ruledomain.ErrInvalidDiscountValue,
		ruledomain.ErrPercentOutOfRange,
		ruledomain.ErrInvalidValidity,
		ruledomain.ErrInvalidMinQuantity,
		ruledomain.ErrInvalidMaxUses,
		ruledomain.ErrInvalidPriority,
		ruledomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
