package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/talechto/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Count is zero when no row exists yet for the day.
func (r *repo) Count(ctx context.Context, db *gorm.DB, principalID, day string) (int, error) {
	var usage domain.Usage
	err := db.WithContext(ctx).
		Where("principal_id = ? AND day = ?", principalID, day).
		Take(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return usage.Count, nil
}

// Increment is a single upsert so concurrent conversions never lose a count.
func (r *repo) Increment(ctx context.Context, db *gorm.DB, principalID, day string) error {
	row := domain.Usage{PrincipalID: principalID, Day: day, Count: 1}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "principal_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count": gorm.Expr("daily_usage.count + 1"),
			}),
		}).
		Create(&row).Error
}
