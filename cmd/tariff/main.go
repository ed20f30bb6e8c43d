package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dotmac/tariff/internal/clock"
	"github.com/dotmac/tariff/internal/config"
	"github.com/dotmac/tariff/internal/migration"
	"github.com/dotmac/tariff/internal/observability"
	"github.com/dotmac/tariff/internal/server"
	"github.com/dotmac/tariff/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
