package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/config"
	"github.com/smallbiznis/talechto/internal/migration"
	"github.com/smallbiznis/talechto/internal/observability"
	"github.com/smallbiznis/talechto/internal/scheduler"
	"github.com/smallbiznis/talechto/internal/server"
	"github.com/smallbiznis/talechto/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and the domains behind it
		server.Module,
		scheduler.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
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
