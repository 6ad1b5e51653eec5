package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/talechto/internal/activity"
	activitydomain "github.com/smallbiznis/talechto/internal/activity/domain"
	"github.com/smallbiznis/talechto/internal/auth"
	authoauth "github.com/smallbiznis/talechto/internal/auth/oauth"
	"github.com/smallbiznis/talechto/internal/auth/session"
	"github.com/smallbiznis/talechto/internal/auth/token"
	"github.com/smallbiznis/talechto/internal/authorization"
	"github.com/smallbiznis/talechto/internal/config"
	"github.com/smallbiznis/talechto/internal/conversion"
	conversiondomain "github.com/smallbiznis/talechto/internal/conversion/domain"
	"github.com/smallbiznis/talechto/internal/identity"
	"github.com/smallbiznis/talechto/internal/observability"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/talechto/internal/observability/metrics"
	obstracing "github.com/smallbiznis/talechto/internal/observability/tracing"
	"github.com/smallbiznis/talechto/internal/payment"
	paymentdomain "github.com/smallbiznis/talechto/internal/payment/domain"
	"github.com/smallbiznis/talechto/internal/principal"
	principaldomain "github.com/smallbiznis/talechto/internal/principal/domain"
	"github.com/smallbiznis/talechto/internal/quota"
	quotadomain "github.com/smallbiznis/talechto/internal/quota/domain"
	"github.com/smallbiznis/talechto/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	principal.Module,
	activity.Module,
	quota.Module,
	auth.Module,
	identity.Module,
	authorization.Module,
	conversion.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

const statusText = "Talechto Audio Converter API Online"

func NewEngine(obsCfg observability.Config, cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORS(cfg.FrontendURL))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, statusText)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})

	return r
}

func registerGin(obsCfg observability.Config, cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, cfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	resolver   *identity.Resolver
	issuer     *token.Issuer
	sessions   *session.Manager
	oauthSvc   authoauth.Service
	authz      authorization.Service
	principals principaldomain.Service
	quotaSvc   quotadomain.Service
	activity   activitydomain.Service
	conversion conversiondomain.Service
	webhooks   paymentdomain.Service
	checkout   paymentdomain.CheckoutService
	limiter    *ratelimit.ConvertLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Resolver   *identity.Resolver
	Issuer     *token.Issuer
	Sessions   *session.Manager
	OAuthSvc   authoauth.Service
	Authz      authorization.Service
	Principals principaldomain.Service
	Quota      quotadomain.Service
	Activity   activitydomain.Service
	Conversion conversiondomain.Service
	Webhooks   paymentdomain.Service
	Checkout   paymentdomain.CheckoutService
	Limiter    *ratelimit.ConvertLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		resolver:   p.Resolver,
		issuer:     p.Issuer,
		sessions:   p.Sessions,
		oauthSvc:   p.OAuthSvc,
		authz:      p.Authz,
		principals: p.Principals,
		quotaSvc:   p.Quota,
		activity:   p.Activity,
		conversion: p.Conversion,
		webhooks:   p.Webhooks,
		checkout:   p.Checkout,
		limiter:    p.Limiter,
	}

	s.registerAuthRoutes()
	s.registerAPIRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.GET("/callback", s.AuthCallback)
	auth.POST("/callback", s.AuthCallback)
	auth.POST("/logout", s.Logout)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/convert", s.Convert)
	api.GET("/usage", s.Usage)
	api.POST("/checkout", s.CreateCheckout)
	api.POST("/webhook/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired())

	admin.GET("/activity",
		s.authorize(authorization.ObjectActivityLog, authorization.ActionView),
		s.ListActivity,
	)
}
