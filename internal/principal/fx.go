package principal

import (
	"github.com/smallbiznis/talechto/internal/principal/repository"
	"github.com/smallbiznis/talechto/internal/principal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("principal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
