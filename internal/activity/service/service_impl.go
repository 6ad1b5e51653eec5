package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/talechto/internal/activity/domain"
	"github.com/smallbiznis/talechto/internal/clock"
	obscontext "github.com/smallbiznis/talechto/internal/observability/context"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	"github.com/smallbiznis/talechto/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("activity.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, principalID string, action domain.Action, details string) error {
	if !action.Valid() {
		return domain.ErrInvalidAction
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return domain.ErrInvalidPrincipal
	}

	metadata := datatypes.JSONMap{}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if ip := obscontext.IPAddressFromContext(ctx); ip != "" {
		metadata["ip"] = ip
	}
	if ua := obscontext.UserAgentFromContext(ctx); ua != "" {
		metadata["user_agent"] = ua
	}

	entry := domain.Entry{
		ID:          s.genID.Generate(),
		PrincipalID: principalID,
		Action:      action,
		Details:     strings.TrimSpace(details),
		Metadata:    metadata,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to write activity log",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{
		PrincipalID: strings.TrimSpace(req.PrincipalID),
		Limit:       req.Limit(),
	}
	if action := domain.Action(strings.ToUpper(strings.TrimSpace(req.Action))); action != "" {
		if !action.Valid() {
			return domain.ListResponse{}, domain.ErrInvalidAction
		}
		filter.Action = action
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.BeforeID = id
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	entries, info, err := pagination.Trim(rows, filter.Limit, func(e domain.Entry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String()}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	return domain.ListResponse{PageInfo: info, Entries: entries}, nil
}
