package auth

import (
	"github.com/smallbiznis/talechto/internal/auth/oauth"
	"github.com/smallbiznis/talechto/internal/auth/session"
	"github.com/smallbiznis/talechto/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(token.NewIssuer),
	fx.Provide(session.NewManager),
	fx.Provide(oauth.NewService),
)
