package domain

import "time"

// Principal is any caller the API meters: a Google account or a pseudonymous
// address hash. Rows are never deleted.
type Principal struct {
	ID                 string     `gorm:"primaryKey;column:id" json:"id"`
	Email              *string    `gorm:"column:email" json:"email,omitempty"`
	IsPremium          bool       `gorm:"column:is_premium" json:"is_premium"`
	PremiumUntil       *time.Time `gorm:"column:premium_until" json:"premium_until,omitempty"`
	BillingReference   *string    `gorm:"column:billing_reference" json:"-"`
	IsAdmin            bool       `gorm:"column:is_admin" json:"-"`
	EntitlementEventAt *time.Time `gorm:"column:entitlement_event_at" json:"-"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Principal) TableName() string { return "principals" }

// EmailOrEmpty dereferences Email.
func (p Principal) EmailOrEmpty() string {
	if p.Email == nil {
		return ""
	}
	return *p.Email
}

// Selector picks the principal an entitlement change targets. Exactly one
// field is set.
type Selector struct {
	PrincipalID      string
	BillingReference string
}

// EntitlementChange is applied as one conditional UPDATE; it only lands when
// OccurredAt is not older than the last change already applied.
type EntitlementChange struct {
	Target           Selector
	Premium          bool
	PremiumUntil     *time.Time
	BillingReference *string
	OccurredAt       time.Time
}
