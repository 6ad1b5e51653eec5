package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/config"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	principaldomain "github.com/smallbiznis/talechto/internal/principal/domain"
	"github.com/smallbiznis/talechto/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Policy     *config.PolicyHolder
	Repo       domain.Repository
	Principals principaldomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	policy     *config.PolicyHolder
	repo       domain.Repository
	principals principaldomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("quota.service"),
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		principals: p.Principals,
	}
}

func (s *Service) CheckLimit(ctx context.Context, principalID string) (domain.Decision, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return domain.Decision{}, domain.ErrInvalidPrincipal
	}
	policy := s.policy.Get()

	premium, err := s.principals.IsPremium(ctx, principalID)
	if err != nil {
		return domain.Decision{}, err
	}
	if premium {
		return domain.Decision{Allowed: true, Remaining: policy.UnlimitedRemaining, Unlimited: true}, nil
	}

	day := clock.DayKey(s.clock.Now())
	count, err := s.repo.Count(ctx, s.db, principalID, day)
	if err != nil {
		return domain.Decision{}, err
	}

	remaining := policy.DailyLimit - count
	if remaining < 0 {
		remaining = 0
	}
	decision := domain.Decision{
		Allowed:   count < policy.DailyLimit,
		Remaining: remaining,
	}
	if !decision.Allowed {
		obslogger.WithContext(ctx, s.log).Debug("daily limit reached",
			zap.String("day", day),
			zap.Int("count", count),
			zap.Int("limit", policy.DailyLimit),
		)
	}
	return decision, nil
}

// Record counts one successful conversion against today's window. Premium
// principals are counted too; the count is simply never consulted for them.
func (s *Service) Record(ctx context.Context, principalID string) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return domain.ErrInvalidPrincipal
	}
	return s.repo.Increment(ctx, s.db, principalID, clock.DayKey(s.clock.Now()))
}
