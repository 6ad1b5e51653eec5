package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/talechto/internal/principal/domain"
	"github.com/smallbiznis/talechto/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureExists(ctx context.Context, conn *gorm.DB, id string, now time.Time) error {
	row := domain.Principal{ID: id, CreatedAt: now, UpdatedAt: now}
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Select("id", "created_at", "updated_at").
		Create(&row).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id string) (*domain.Principal, error) {
	return r.first(ctx, conn, "id = ?", id)
}

func (r *repo) FindByBillingReference(ctx context.Context, conn *gorm.DB, ref string) (*domain.Principal, error) {
	return r.first(ctx, conn, "billing_reference = ?", ref)
}

func (r *repo) first(ctx context.Context, conn *gorm.DB, where string, arg any) (*domain.Principal, error) {
	var p domain.Principal
	err := conn.WithContext(ctx).Where(where, arg).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) UpsertIdentity(ctx context.Context, conn *gorm.DB, id, email string, now time.Time) error {
	row := domain.Principal{ID: id, CreatedAt: now, UpdatedAt: now}
	if email = strings.TrimSpace(email); email != "" {
		row.Email = &email
	}
	err := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "updated_at"}),
		}).
		Select("id", "email", "created_at", "updated_at").
		Create(&row).Error
	return conflictErr(err)
}

// conflictErr maps unique violations on email or billing_reference.
func conflictErr(err error) error {
	if db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

func (r *repo) ApplyEntitlement(ctx context.Context, conn *gorm.DB, change domain.EntitlementChange, now time.Time) (bool, error) {
	updates := map[string]any{
		"is_premium":           change.Premium,
		"entitlement_event_at": change.OccurredAt,
		"updated_at":           now,
	}
	if change.PremiumUntil != nil {
		updates["premium_until"] = *change.PremiumUntil
	}
	if change.BillingReference != nil {
		updates["billing_reference"] = *change.BillingReference
	}

	stmt := conn.WithContext(ctx).Model(&domain.Principal{})
	switch {
	case change.Target.PrincipalID != "":
		stmt = stmt.Where("id = ?", change.Target.PrincipalID)
	case change.Target.BillingReference != "":
		stmt = stmt.Where("billing_reference = ?", change.Target.BillingReference)
	default:
		return false, domain.ErrInvalidSelector
	}

	res := stmt.
		Where("(entitlement_event_at IS NULL OR entitlement_event_at <= ?)", change.OccurredAt).
		Updates(updates)
	if res.Error != nil {
		return false, conflictErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetAdmin(ctx context.Context, conn *gorm.DB, id string, admin bool, now time.Time) error {
	res := conn.WithContext(ctx).Model(&domain.Principal{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_admin": admin, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
