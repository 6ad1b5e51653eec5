package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/talechto/internal/clock"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	"github.com/smallbiznis/talechto/internal/principal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("principal.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Touch(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidID
	}
	return s.repo.EnsureExists(ctx, s.db, id, s.clock.Now())
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) GetByBillingReference(ctx context.Context, ref string) (*domain.Principal, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrInvalidSelector
	}
	return s.repo.FindByBillingReference(ctx, s.db, ref)
}

func (s *Service) IsPremium(ctx context.Context, id string) (bool, error) {
	p, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsPremium, nil
}

// LinkIdentity records the email of a freshly authenticated account.
func (s *Service) LinkIdentity(ctx context.Context, id, email string) (*domain.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	if err := s.repo.UpsertIdentity(ctx, s.db, id, email, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) ApplyEntitlement(ctx context.Context, change domain.EntitlementChange) (bool, error) {
	change.Target.PrincipalID = strings.TrimSpace(change.Target.PrincipalID)
	change.Target.BillingReference = strings.TrimSpace(change.Target.BillingReference)
	if change.Target.PrincipalID == "" && change.Target.BillingReference == "" {
		return false, domain.ErrInvalidSelector
	}
	change.OccurredAt = change.OccurredAt.UTC()

	applied, err := s.repo.ApplyEntitlement(ctx, s.db, change, s.clock.Now())
	if err != nil {
		return false, err
	}
	if !applied {
		obslogger.WithContext(ctx, s.log).Info("entitlement change skipped",
			zap.String("principal_id", obslogger.ShortID(change.Target.PrincipalID)),
			zap.Bool("premium", change.Premium),
			zap.Time("occurred_at", change.OccurredAt),
		)
	}
	return applied, nil
}

func (s *Service) SetAdmin(ctx context.Context, id string, admin bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidID
	}
	return s.repo.SetAdmin(ctx, s.db, id, admin, s.clock.Now())
}
