package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/dotmac/tariff/internal/config"
	"github.com/dotmac/tariff/internal/orgcontext"
)

const orgHeader = "X-Org-Id"

// OrgMiddleware resolves the organization for the request from the
// X-Org-Id header, falling back to the configured default. Requests with
// no resolvable organization are rejected before any handler runs.
func OrgMiddleware(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := cfg.DefaultOrgID
		if raw := strings.TrimSpace(c.GetHeader(orgHeader)); raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid organization"))
				return
			}
			orgID = parsed.Int64()
		}

		if orgID == 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_organization", "organization is required"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// quoteRateLimit guards the quote endpoints, which are the hot path and the
// only ones exposed to partner portals.
func (s *Server) quoteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, ok := orgcontext.OrgIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		allowed, err := s.quoteLimiter.Allow(c.Request.Context(), org.String(), c.FullPath())
		if err != nil || allowed {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}})
	}
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		return "validation_error", vErr.Errors[0].Code
	}
	if isValidationError(err) {
		return "validation_error", err.Error()
	}
	if isNotFoundError(err) {
		return "not_found", err.Error()
	}
	if isConflictError(err) {
		return "conflict", err.Error()
	}
	return "internal_error", err.Error()
}
