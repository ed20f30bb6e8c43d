package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/dotmac/tariff/internal/config"
	"github.com/dotmac/tariff/internal/customer"
	customerdomain "github.com/dotmac/tariff/internal/customer/domain"
	"github.com/dotmac/tariff/internal/observability"
	obsmiddleware "github.com/dotmac/tariff/internal/observability/logger"
	obsmetrics "github.com/dotmac/tariff/internal/observability/metrics"
	obstracing "github.com/dotmac/tariff/internal/observability/tracing"
	"github.com/dotmac/tariff/internal/pricing"
	pricingdomain "github.com/dotmac/tariff/internal/pricing/domain"
	"github.com/dotmac/tariff/internal/pricingrule"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	"github.com/dotmac/tariff/internal/product"
	productdomain "github.com/dotmac/tariff/internal/product/domain"
	"github.com/dotmac/tariff/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	customer.Module,
	product.Module,
	pricingrule.Module,
	pricing.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	productSvc   productdomain.Service
	customerSvc  customerdomain.Service
	ruleSvc      ruledomain.Service
	pricingSvc   pricingdomain.Service
	quoteLimiter ratelimit.Limiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	ProductSvc   productdomain.Service
	CustomerSvc  customerdomain.Service
	RuleSvc      ruledomain.Service
	PricingSvc   pricingdomain.Service
	QuoteLimiter ratelimit.Limiter
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		productSvc:   p.ProductSvc,
		customerSvc:  p.CustomerSvc,
		ruleSvc:      p.RuleSvc,
		pricingSvc:   p.PricingSvc,
		quoteLimiter: p.QuoteLimiter,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(OrgMiddleware(s.cfg))

	v1.POST("/products", s.CreateProduct)
	v1.GET("/products", s.ListProducts)
	v1.GET("/products/:id", s.GetProductByID)

	v1.POST("/customers", s.CreateCustomer)
	v1.GET("/customers", s.ListCustomers)
	v1.GET("/customers/:id", s.GetCustomerByID)

	v1.POST("/pricing-rules", s.CreatePricingRule)
	v1.GET("/pricing-rules", s.ListPricingRules)
	v1.GET("/pricing-rules/:id", s.GetPricingRuleByID)
	v1.PATCH("/pricing-rules/:id", s.UpdatePricingRule)
	v1.POST("/pricing-rules/:id/activate", s.ActivatePricingRule)
	v1.POST("/pricing-rules/:id/deactivate", s.DeactivatePricingRule)

	quotes := v1.Group("/quotes")
	quotes.Use(s.quoteRateLimit())
	quotes.POST("", s.SimulateQuote)
	quotes.POST("/commit", s.CommitQuote)
}
