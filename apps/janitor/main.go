package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/config"
	"github.com/smallbiznis/talechto/internal/conversion/workspace"
	"github.com/smallbiznis/talechto/internal/observability"
	"github.com/smallbiznis/talechto/internal/scheduler"
	"go.uber.org/fx"
)

// Standalone artifact sweeper for hosts where the API runs with
// JANITOR_ENABLED=false. It must share CONVERT_WORKDIR with the API.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		fx.Provide(workspace.New),

		// No server or database
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
