package payment

import (
	"github.com/smallbiznis/talechto/internal/payment/adapters"
	"github.com/smallbiznis/talechto/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/talechto/internal/payment/domain"
	"github.com/smallbiznis/talechto/internal/payment/repository"
	paymentservice "github.com/smallbiznis/talechto/internal/payment/service"
	"github.com/smallbiznis/talechto/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() adapters.Registry {
		return adapters.NewRegistry(stripe.NewFactory())
	}),
	fx.Provide(stripe.NewCheckoutClient),
	fx.Provide(paymentservice.NewService),
	fx.Provide(
		func(s *paymentservice.Service) paymentdomain.Processor { return s },
		func(s *paymentservice.Service) paymentdomain.CheckoutService { return s },
	),
	fx.Provide(webhook.NewService),
)
