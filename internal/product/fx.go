package product

import (
	"github.com/dotmac/tariff/internal/product/repository"
	"github.com/dotmac/tariff/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
