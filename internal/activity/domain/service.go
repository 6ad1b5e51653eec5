package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/talechto/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListRequest struct {
	pagination.Pagination
	PrincipalID string `form:"principal_id"`
	Action      string `form:"action"`
}

type ListResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Entry, error)
}

type Service interface {
	// Record appends an entry. Callers treat a failure as non-fatal.
	Record(ctx context.Context, principalID string, action Action, details string) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPrincipal = errors.New("invalid_principal")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
