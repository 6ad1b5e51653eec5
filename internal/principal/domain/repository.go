package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// EnsureExists inserts a bare principal; an existing row is left untouched.
	EnsureExists(ctx context.Context, db *gorm.DB, id string, now time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Principal, error)
	FindByBillingReference(ctx context.Context, db *gorm.DB, ref string) (*Principal, error)
	UpsertIdentity(ctx context.Context, db *gorm.DB, id, email string, now time.Time) error
	ApplyEntitlement(ctx context.Context, db *gorm.DB, change EntitlementChange, now time.Time) (bool, error)
	SetAdmin(ctx context.Context, db *gorm.DB, id string, admin bool, now time.Time) error
}
