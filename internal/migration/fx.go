package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dotmac/tariff/internal/config"
	customerdomain "github.com/dotmac/tariff/internal/customer/domain"
	ruledomain "github.com/dotmac/tariff/internal/pricingrule/domain"
	productdomain "github.com/dotmac/tariff/internal/product/domain"
	"github.com/dotmac/tariff/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are development conveniences, let gorm
			// derive the schema there instead of maintaining per-dialect
			// migration files.
			if err := conn.AutoMigrate(
				&productdomain.Product{},
				&customerdomain.Customer{},
				&ruledomain.PricingRule{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemoCatalog {
			return seed.EnsureDemoCatalog(conn, node, log, cfg.DefaultOrgID)
		}
		return nil
	}),
)
