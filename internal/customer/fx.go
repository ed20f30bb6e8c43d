package customer

import (
	"github.com/dotmac/tariff/internal/customer/repository"
	"github.com/dotmac/tariff/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
