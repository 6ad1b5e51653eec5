package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	activitydomain "github.com/smallbiznis/talechto/internal/activity/domain"
	"github.com/smallbiznis/talechto/internal/config"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/talechto/internal/payment/domain"
	principaldomain "github.com/smallbiznis/talechto/internal/principal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Policy     *config.PolicyHolder
	Principals principaldomain.Service
	Activity   activitydomain.Service
	Checkout   paymentdomain.CheckoutClient
}

type Service struct {
	log         *zap.Logger
	frontendURL string
	policy      *config.PolicyHolder
	principals  principaldomain.Service
	activity    activitydomain.Service
	checkout    paymentdomain.CheckoutClient
}

func NewService(p Params) *Service {
	return &Service{
		log:         p.Log.Named("payment.service"),
		frontendURL: strings.TrimRight(p.Cfg.FrontendURL, "/"),
		policy:      p.Policy,
		principals:  p.Principals,
		activity:    p.Activity,
		checkout:    p.Checkout,
	}
}

func (s *Service) Apply(ctx context.Context, event paymentdomain.Event) (bool, error) {
	if event == nil {
		return false, paymentdomain.ErrInvalidEvent
	}
	meta := event.EventMeta()
	if meta.OccurredAt.IsZero() {
		return false, paymentdomain.ErrInvalidEvent
	}
	occurredAt := meta.OccurredAt.UTC()
	premiumUntil := occurredAt.Add(time.Duration(s.policy.Get().PremiumPeriodDays) * 24 * time.Hour)
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("event_type", event.Type()),
		zap.String("provider_event_id", meta.ProviderEventID),
	)

	var (
		change  principaldomain.EntitlementChange
		action  activitydomain.Action
		details string
	)
	switch e := event.(type) {
	case *paymentdomain.SubscriptionActivated:
		if e.PrincipalID == "" || e.BillingReference == "" {
			return false, paymentdomain.ErrInvalidEvent
		}
		// The checkout may finish before the principal row exists.
		if err := s.principals.Touch(ctx, e.PrincipalID); err != nil {
			return false, err
		}
		ref := e.BillingReference
		change = principaldomain.EntitlementChange{
			Target:           principaldomain.Selector{PrincipalID: e.PrincipalID},
			Premium:          true,
			PremiumUntil:     &premiumUntil,
			BillingReference: &ref,
		}
		action = activitydomain.ActionPaymentActivated
		details = fmt.Sprintf("Subscription %s activated until %s", e.SubscriptionID, premiumUntil.Format(time.RFC3339))
	case *paymentdomain.InvoicePaid:
		if e.FirstInvoice {
			log.Debug("first invoice ignored; activation already granted the period")
			return false, nil
		}
		change = principaldomain.EntitlementChange{
			Target:       principaldomain.Selector{BillingReference: e.BillingReference},
			Premium:      true,
			PremiumUntil: &premiumUntil,
		}
		action = activitydomain.ActionPaymentRenewed
		details = fmt.Sprintf("Subscription %s renewed until %s", e.SubscriptionID, premiumUntil.Format(time.RFC3339))
	case *paymentdomain.InvoicePaymentFailed:
		change = principaldomain.EntitlementChange{
			Target: principaldomain.Selector{BillingReference: e.BillingReference},
		}
		action = activitydomain.ActionPaymentFailed
		details = "Invoice payment failed"
	case *paymentdomain.SubscriptionDeleted:
		change = principaldomain.EntitlementChange{
			Target: principaldomain.Selector{BillingReference: e.BillingReference},
		}
		action = activitydomain.ActionSubscriptionCanceled
		details = fmt.Sprintf("Subscription %s canceled", e.SubscriptionID)
	default:
		return false, paymentdomain.ErrEventIgnored
	}
	change.OccurredAt = occurredAt

	applied, err := s.principals.ApplyEntitlement(ctx, change)
	if errors.Is(err, principaldomain.ErrConflict) {
		// Redelivery cannot resolve a customer id owned by another principal.
		log.Error("billing reference already linked to another principal",
			zap.String("principal_id", obslogger.ShortID(change.Target.PrincipalID)),
			zap.Error(err),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !applied {
		log.Info("payment event did not change any principal")
		return false, nil
	}

	principalID := change.Target.PrincipalID
	if principalID == "" {
		principal, err := s.principals.GetByBillingReference(ctx, change.Target.BillingReference)
		if err != nil {
			log.Warn("applied entitlement but principal lookup failed", zap.Error(err))
			return true, nil
		}
		principalID = principal.ID
	}
	_ = s.activity.Record(ctx, principalID, action, details)
	log.Info("entitlement updated",
		zap.String("principal_id", obslogger.ShortID(principalID)),
		zap.Bool("premium", change.Premium),
	)
	return true, nil
}

// CreateCheckout opens a hosted subscription checkout for an authenticated
// principal that is not premium yet.
func (s *Service) CreateCheckout(ctx context.Context, principalID string) (string, error) {
	principal, err := s.principals.Get(ctx, principalID)
	if err != nil && !errors.Is(err, principaldomain.ErrNotFound) {
		return "", err
	}
	email := ""
	if principal != nil {
		if principal.IsPremium {
			return "", paymentdomain.ErrAlreadySubscribed
		}
		email = principal.EmailOrEmpty()
	}

	link, err := s.checkout.CreateCheckoutSession(ctx, paymentdomain.CheckoutRequest{
		PrincipalID: principalID,
		Email:       email,
		SuccessURL:  s.frontendURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.frontendURL + "/cancel",
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("checkout session failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", paymentdomain.ErrCheckoutFailed, err)
	}
	return link, nil
}

var (
	_ paymentdomain.Processor       = (*Service)(nil)
	_ paymentdomain.CheckoutService = (*Service)(nil)
)
