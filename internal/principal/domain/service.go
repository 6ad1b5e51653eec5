package domain

import (
	"context"
	"errors"
)

type Service interface {
	Touch(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Principal, error)
	GetByBillingReference(ctx context.Context, ref string) (*Principal, error)
	// IsPremium is false for unknown principals.
	IsPremium(ctx context.Context, id string) (bool, error)
	LinkIdentity(ctx context.Context, id, email string) (*Principal, error)
	ApplyEntitlement(ctx context.Context, change EntitlementChange) (bool, error)
	SetAdmin(ctx context.Context, id string, admin bool) error
}

var (
	ErrNotFound        = errors.New("principal_not_found")
	ErrInvalidID       = errors.New("invalid_principal_id")
	ErrInvalidSelector = errors.New("invalid_principal_selector")
	ErrConflict        = errors.New("principal_conflict")
)
