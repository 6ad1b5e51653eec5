package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	principaldomain "github.com/smallbiznis/talechto/internal/principal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectActivityLog = "activity_log"
	ObjectUsage       = "usage"

	ActionView = "view"

	RoleAdmin = "role:admin"
	RoleUser  = "role:user"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Enforcer   *casbin.SyncedEnforcer
	Principals principaldomain.Service
}

type ServiceImpl struct {
	log        *zap.Logger
	enforcer   *casbin.SyncedEnforcer
	principals principaldomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:        p.Log.Named("authorization.service"),
		enforcer:   p.Enforcer,
		principals: p.Principals,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principalID string, object string, action string) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role, err := s.roleFor(ctx, principalID)
	if err != nil {
		s.denied(ctx, principalID, object, action)
		return err
	}
	subject := "principal:" + principalID
	if err := s.ensureGrouping(subject, role); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.denied(ctx, principalID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) roleFor(ctx context.Context, principalID string) (string, error) {
	principal, err := s.principals.Get(ctx, principalID)
	if errors.Is(err, principaldomain.ErrNotFound) {
		return "", ErrForbidden
	}
	if err != nil {
		return "", err
	}
	if principal.IsAdmin {
		return RoleAdmin, nil
	}
	return RoleUser, nil
}

// ensureGrouping keeps exactly one role link per subject, so a revoked admin
// flag takes effect on the next check.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) denied(ctx context.Context, principalID, object, action string) {
	obslogger.WithContext(ctx, s.log).Warn("authorization denied",
		zap.String("subject", obslogger.ShortID(principalID)),
		zap.String("object", object),
		zap.String("action", action),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleUser, ObjectUsage, ActionView},

		{RoleAdmin, ObjectUsage, ActionView},
		{RoleAdmin, ObjectActivityLog, ActionView},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
