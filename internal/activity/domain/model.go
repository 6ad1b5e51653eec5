package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Action string

const (
	ActionConversionStart      Action = "CONVERSION_START"
	ActionConversionSuccess    Action = "CONVERSION_SUCCESS"
	ActionConversionError      Action = "CONVERSION_ERROR"
	ActionLimitReached         Action = "LIMIT_REACHED"
	ActionSizeExceeded         Action = "SIZE_EXCEEDED"
	ActionPaymentActivated     Action = "PAYMENT_ACTIVATED"
	ActionPaymentRenewed       Action = "PAYMENT_RENEWED"
	ActionPaymentFailed        Action = "PAYMENT_FAILED"
	ActionSubscriptionCanceled Action = "SUBSCRIPTION_CANCELED"
)

var knownActions = map[Action]struct{}{
	ActionConversionStart:      {},
	ActionConversionSuccess:    {},
	ActionConversionError:      {},
	ActionLimitReached:         {},
	ActionSizeExceeded:         {},
	ActionPaymentActivated:     {},
	ActionPaymentRenewed:       {},
	ActionPaymentFailed:        {},
	ActionSubscriptionCanceled: {},
}

func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Entry is one append-only activity log row.
type Entry struct {
	ID          snowflake.ID      `gorm:"primaryKey;column:id" json:"id,string"`
	PrincipalID string            `gorm:"column:principal_id" json:"principal_id"`
	Action      Action            `gorm:"column:action" json:"action"`
	Details     string            `gorm:"column:details" json:"details,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (Entry) TableName() string { return "activity_logs" }

type ListFilter struct {
	PrincipalID string
	Action      Action
	BeforeID    snowflake.ID
	Limit       int
}
