package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/config"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/talechto/internal/observability/metrics"
	"github.com/smallbiznis/talechto/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/talechto/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeApplied   = "applied"
	outcomeSkipped   = "skipped"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeError     = "error"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	Processor  paymentdomain.Processor
	Repo       paymentdomain.Repository
	Adapters   adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	processor  paymentdomain.Processor
	repo       paymentdomain.Repository
	adapters   adapters.Registry
	secrets    map[string]string
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	log := p.Log.Named("payment.webhook")
	log.Debug("payment webhook providers", zap.Strings("providers", p.Adapters.Providers()))
	return &Service{
		db:        p.DB,
		log:       log,
		genID:     p.GenID,
		clock:     p.Clock,
		processor: p.Processor,
		repo:      p.Repo,
		adapters:  p.Adapters,
		secrets: map[string]string{
			"stripe": p.Cfg.Stripe.WebhookSecret,
		},
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook authenticates, records and applies one delivery. A redelivery
// of an already processed event is acknowledged without being re-applied.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider, paymentdomain.AdapterConfig{
		Provider:      provider,
		WebhookSecret: s.secrets[provider],
		Now:           s.clock.Now,
	})
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	log := obslogger.WithContext(ctx, s.log).With(zap.String("provider", provider))
	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			log.Info("payment webhook ignored")
			s.obsMetrics.RecordPaymentEvent(ctx, provider, "unhandled", outcomeIgnored)
			return nil
		}
		return err
	}

	meta := event.EventMeta()
	now := s.clock.Now().UTC()
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: meta.ProviderEventID,
		EventType:       event.Type(),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	if ref := strings.TrimSpace(event.BillingRef()); ref != "" {
		record.BillingReference = &ref
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, meta.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			log.Info("payment webhook already processed", zap.String("provider_event_id", meta.ProviderEventID))
			s.obsMetrics.RecordPaymentEvent(ctx, provider, event.Type(), outcomeDuplicate)
			return nil
		}
	}

	applied, err := s.processor.Apply(ctx, event)
	if err != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, provider, event.Type(), outcomeError)
		return err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	outcome := outcomeSkipped
	if applied {
		outcome = outcomeApplied
	}
	s.obsMetrics.RecordPaymentEvent(ctx, provider, event.Type(), outcome)
	log.Info("payment webhook processed",
		zap.String("event_type", event.Type()),
		zap.String("provider_event_id", meta.ProviderEventID),
		zap.Bool("applied", applied),
		zap.Duration("age", now.Sub(meta.OccurredAt)),
	)
	return nil
}

