package pricingrule

import (
	"github.com/dotmac/tariff/internal/pricingrule/repository"
	"github.com/dotmac/tariff/internal/pricingrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricingrule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
