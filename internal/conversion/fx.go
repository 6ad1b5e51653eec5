package conversion

import (
	"github.com/smallbiznis/talechto/internal/conversion/converter"
	"github.com/smallbiznis/talechto/internal/conversion/service"
	"github.com/smallbiznis/talechto/internal/conversion/workspace"
	"go.uber.org/fx"
)

var Module = fx.Module("conversion.service",
	fx.Provide(workspace.New),
	fx.Provide(converter.NewFFmpeg),
	fx.Provide(service.NewService),
)
