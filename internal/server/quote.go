package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/dotmac/tariff/internal/pricing/domain"
)

type quoteRequest struct {
	ProductID        string   `json:"product_id"`
	CustomerID       string   `json:"customer_id"`
	Quantity         int64    `json:"quantity"`
	CustomerSegments []string `json:"customer_segments"`
	AsOf             string   `json:"as_of"`
}

func (r quoteRequest) toCalculationRequest() (pricingdomain.CalculationRequest, error) {
	asOf, err := parseOptionalTime(r.AsOf)
	if err != nil {
		return pricingdomain.CalculationRequest{}, newValidationError("as_of", "invalid_as_of", "invalid as_of timestamp")
	}

	return pricingdomain.CalculationRequest{
		ProductID:        strings.TrimSpace(r.ProductID),
		CustomerID:       strings.TrimSpace(r.CustomerID),
		Quantity:         r.Quantity,
		CustomerSegments: r.CustomerSegments,
		AsOf:             asOf,
	}, nil
}

// SimulateQuote prices a request without consuming usage budgets. Repeated
// calls with the same inputs return the same result.
func (s *Server) SimulateQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	calcReq, err := req.toCalculationRequest()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.pricingSvc.Calculate(c.Request.Context(), calcReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CommitQuote prices a request and consumes one use from every applied
// rule's budget.
func (s *Server) CommitQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	calcReq, err := req.toCalculationRequest()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.pricingSvc.Commit(c.Request.Context(), calcReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isQuoteValidationError(err error) bool {
	switch err {
	case pricingdomain.ErrInvalidOrganization,
		pricingdomain.ErrInvalidProduct,
		pricingdomain.ErrInvalidCustomer,
		pricingdomain.ErrInvalidQuantity:
		return true
	default:
		return false
	}
}
