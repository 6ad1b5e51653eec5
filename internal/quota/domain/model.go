package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Usage is one principal's conversion count for one UTC day.
type Usage struct {
	PrincipalID string `gorm:"primaryKey;column:principal_id"`
	Day         string `gorm:"primaryKey;column:day"`
	Count       int    `gorm:"column:count"`
}

func (Usage) TableName() string { return "daily_usage" }

// Decision is the admission answer for one request.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// AfterConversion is the credit count to report once one more conversion
// has been recorded.
func (d Decision) AfterConversion() int {
	if d.Unlimited {
		return d.Remaining
	}
	if d.Remaining <= 1 {
		return 0
	}
	return d.Remaining - 1
}

type Repository interface {
	Count(ctx context.Context, db *gorm.DB, principalID, day string) (int, error)
	Increment(ctx context.Context, db *gorm.DB, principalID, day string) error
}

type Service interface {
	CheckLimit(ctx context.Context, principalID string) (Decision, error)
	Record(ctx context.Context, principalID string) error
}

var ErrInvalidPrincipal = errors.New("invalid_principal")
