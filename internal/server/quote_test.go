package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/dotmac/tariff/internal/config"
	"github.com/dotmac/tariff/internal/orgcontext"
	pricingdomain "github.com/dotmac/tariff/internal/pricing/domain"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	"github.com/dotmac/tariff/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePricingService struct {
	calculateCalls int
	commitCalls    int
	lastOrgID      int64
	result         *pricingdomain.CalculationResult
	err            error
}

func (f *fakePricingService) Calculate(ctx context.Context, req pricingdomain.CalculationRequest) (*pricingdomain.CalculationResult, error) {
	f.calculateCalls++
	if org, ok := orgcontext.OrgIDFromContext(ctx); ok {
		f.lastOrgID = org.Int64()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakePricingService) Commit(ctx context.Context, req pricingdomain.CalculationRequest) (*pricingdomain.CalculationResult, error) {
	f.commitCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type allowLimiter struct{}

func (allowLimiter) Allow(context.Context, string, string) (bool, error) { return true, nil }

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, string) (bool, error) { return false, nil }

func newQuoteTestServer(svc pricingdomain.Service, limiter ratelimit.Limiter) *Server {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	s := &Server{
		engine:       engine,
		cfg:          config.Config{DefaultOrgID: 42},
		pricingSvc:   svc,
		quoteLimiter: limiter,
	}
	s.registerAPIRoutes()
	return s
}

func postJSON(t *testing.T, s *Server, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestSimulateQuote(t *testing.T) {
	svc := &fakePricingService{
		result: &pricingdomain.CalculationResult{
			ProductID:       "1001",
			Quantity:        1,
			SubtotalCents:   7900,
			FinalPriceCents: 6399,
		},
	}
	s := newQuoteTestServer(svc, allowLimiter{})

	w := postJSON(t, s, "/v1/quotes", gin.H{"product_id": "1001", "quantity": 1}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.calculateCalls)
	assert.Equal(t, 0, svc.commitCalls)
	assert.Equal(t, int64(42), svc.lastOrgID)

	var body struct {
		Data pricingdomain.CalculationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(6399), body.Data.FinalPriceCents)
}

func TestSimulateQuoteOrgHeader(t *testing.T) {
	svc := &fakePricingService{result: &pricingdomain.CalculationResult{}}
	s := newQuoteTestServer(svc, allowLimiter{})

	w := postJSON(t, s, "/v1/quotes", gin.H{"product_id": "1001", "quantity": 1},
		map[string]string{"X-Org-Id": "777"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(777), svc.lastOrgID)

	w = postJSON(t, s, "/v1/quotes", gin.H{"product_id": "1001", "quantity": 1},
		map[string]string{"X-Org-Id": "not-a-number"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSimulateQuoteMissingOrg(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePricingService{result: &pricingdomain.CalculationResult{}}

	s := &Server{
		engine:       gin.New(),
		cfg:          config.Config{},
		pricingSvc:   svc,
		quoteLimiter: allowLimiter{},
	}
	s.engine.Use(ErrorHandlingMiddleware())
	s.registerAPIRoutes()

	w := postJSON(t, s, "/v1/quotes", gin.H{"product_id": "1001", "quantity": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, svc.calculateCalls)
}

func TestCommitQuote(t *testing.T) {
	svc := &fakePricingService{
		result: &pricingdomain.CalculationResult{
			QuoteID:   "01JXYZ",
			Committed: true,
		},
	}
	s := newQuoteTestServer(svc, allowLimiter{})

	w := postJSON(t, s, "/v1/quotes/commit", gin.H{"product_id": "1001", "quantity": 1}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.commitCalls)

	var body struct {
		Data pricingdomain.CalculationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.Committed)
	assert.Equal(t, "01JXYZ", body.Data.QuoteID)
}

func TestQuoteErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"product not found", pricingdomain.ErrProductNotFound, http.StatusNotFound},
		{"customer not found", pricingdomain.ErrCustomerNotFound, http.StatusNotFound},
		{"invalid quantity", pricingdomain.ErrInvalidQuantity, http.StatusBadRequest},
		{"usage limit", ruledomain.ErrUsageLimitExceeded, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakePricingService{err: tc.err}
			s := newQuoteTestServer(svc, allowLimiter{})

			w := postJSON(t, s, "/v1/quotes", gin.H{"product_id": "1001", "quantity": 1}, nil)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestQuoteRateLimited(t *testing.T) {
	svc := &fakePricingService{result: &pricingdomain.CalculationResult{}}
	s := newQuoteTestServer(svc, denyLimiter{})

	w := postJSON(t, s, "/v1/quotes", gin.H{"product_id": "1001", "quantity": 1}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 0, svc.calculateCalls)
}

func TestQuoteInvalidAsOf(t *testing.T) {
	svc := &fakePricingService{result: &pricingdomain.CalculationResult{}}
	s := newQuoteTestServer(svc, allowLimiter{})

	w := postJSON(t, s, "/v1/quotes", gin.H{
		"product_id": "1001",
		"quantity":   1,
		"as_of":      "yesterday",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, svc.calculateCalls)
}
