package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is the dedup row for one delivered provider event.
type EventRecord struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey;column:id"`
	Provider         string         `json:"provider" gorm:"column:provider"`
	ProviderEventID  string         `json:"provider_event_id" gorm:"column:provider_event_id"`
	EventType        string         `json:"event_type" gorm:"column:event_type"`
	BillingReference *string        `json:"billing_reference,omitempty" gorm:"column:billing_reference"`
	Payload          datatypes.JSON `json:"payload" gorm:"column:payload"`
	ReceivedAt       time.Time      `json:"received_at" gorm:"column:received_at"`
	ProcessedAt      *time.Time     `json:"processed_at" gorm:"column:processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeSubscriptionActivated = "subscription_activated"
	EventTypeInvoicePaid           = "invoice_paid"
	EventTypeInvoicePaymentFailed  = "invoice_payment_failed"
	EventTypeSubscriptionDeleted   = "subscription_deleted"
)

// Meta is carried by every event variant.
type Meta struct {
	Provider        string
	ProviderEventID string
	OccurredAt      time.Time
	RawPayload      []byte
}

// Event is a closed set of variants; only this package can add one.
type Event interface {
	EventMeta() *Meta
	Type() string
	// BillingRef is the provider customer the event concerns.
	BillingRef() string
	sealed()
}

type SubscriptionActivated struct {
	Meta
	PrincipalID      string
	BillingReference string
	SubscriptionID   string
}

type InvoicePaid struct {
	Meta
	BillingReference string
	SubscriptionID   string
	// FirstInvoice is true for the invoice issued at subscription creation;
	// that period is already granted by SubscriptionActivated.
	FirstInvoice bool
}

type InvoicePaymentFailed struct {
	Meta
	BillingReference string
}

type SubscriptionDeleted struct {
	Meta
	BillingReference string
	SubscriptionID   string
}

func (e *SubscriptionActivated) EventMeta() *Meta { return &e.Meta }
func (e *InvoicePaid) EventMeta() *Meta           { return &e.Meta }
func (e *InvoicePaymentFailed) EventMeta() *Meta  { return &e.Meta }
func (e *SubscriptionDeleted) EventMeta() *Meta   { return &e.Meta }

func (*SubscriptionActivated) Type() string { return EventTypeSubscriptionActivated }
func (*InvoicePaid) Type() string           { return EventTypeInvoicePaid }
func (*InvoicePaymentFailed) Type() string  { return EventTypeInvoicePaymentFailed }
func (*SubscriptionDeleted) Type() string   { return EventTypeSubscriptionDeleted }

func (e *SubscriptionActivated) BillingRef() string { return e.BillingReference }
func (e *InvoicePaid) BillingRef() string           { return e.BillingReference }
func (e *InvoicePaymentFailed) BillingRef() string  { return e.BillingReference }
func (e *SubscriptionDeleted) BillingRef() string   { return e.BillingReference }

func (*SubscriptionActivated) sealed() {}
func (*InvoicePaid) sealed()           {}
func (*InvoicePaymentFailed) sealed()  {}
func (*SubscriptionDeleted) sealed()   {}

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
	Tolerance     time.Duration
	Now           func() time.Time
}

// PaymentAdapter authenticates and decodes one provider's webhook deliveries.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (Event, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// CheckoutRequest describes the hosted subscription checkout to open.
type CheckoutRequest struct {
	PrincipalID string
	Email       string
	SuccessURL  string
	CancelURL   string
}

type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

// Processor turns parsed events into entitlement changes.
type Processor interface {
	// Apply reports whether the event changed any principal.
	Apply(ctx context.Context, event Event) (bool, error)
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type CheckoutService interface {
	CreateCheckout(ctx context.Context, principalID string) (string, error)
}

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrMissingSignature      = errors.New("missing_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrAlreadySubscribed     = errors.New("already_subscribed")
	ErrCheckoutFailed        = errors.New("checkout_failed")
)
