package stripe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/talechto/internal/payment/domain"
)

const (
	Provider = "stripe"

	DefaultTolerance = 5 * time.Minute
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{webhookSecret: secret, tolerance: tolerance, now: now}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrMissingSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	signedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	skew := a.now().Sub(time.Unix(signedAt, 0))
	if math.Abs(float64(skew)) > float64(a.tolerance) {
		return domain.ErrInvalidSignature
	}

	expected := Sign(a.webhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

// Sign computes the v1 signature for payload signed at timestamp.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	meta := domain.Meta{
		Provider:        Provider,
		ProviderEventID: strings.TrimSpace(event.ID),
		OccurredAt:      a.timestamp(event.Created),
		RawPayload:      payload,
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return parseCheckoutSession(meta, event.Data.Object)
	case "invoice.paid":
		return parseInvoicePaid(meta, event.Data.Object)
	case "invoice.payment_failed":
		return parseInvoiceFailed(meta, event.Data.Object)
	case "customer.subscription.deleted":
		return parseSubscriptionDeleted(meta, event.Data.Object)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          expandable        `json:"customer"`
	Subscription      expandable        `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID            string        `json:"id"`
	Customer      expandable    `json:"customer"`
	Subscription  expandable    `json:"subscription"`
	BillingReason string        `json:"billing_reason"`
	Parent        *stripeParent `json:"parent"`
}

// stripeParent carries the subscription on newer API versions.
type stripeParent struct {
	SubscriptionDetails *struct {
		Subscription expandable `json:"subscription"`
	} `json:"subscription_details"`
}

type stripeSubscription struct {
	ID       string     `json:"id"`
	Customer expandable `json:"customer"`
}

// expandable is a Stripe field that is either an id or an expanded object.
type expandable string

func (e *expandable) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandable(strings.TrimSpace(id))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandable(strings.TrimSpace(obj.ID))
	return nil
}

func parseCheckoutSession(meta domain.Meta, raw json.RawMessage) (domain.Event, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	// One-off payments never grant the subscription entitlement.
	if session.Subscription == "" {
		return nil, domain.ErrEventIgnored
	}
	principalID := strings.TrimSpace(session.Metadata["userId"])
	if principalID == "" {
		principalID = strings.TrimSpace(session.ClientReferenceID)
	}
	if principalID == "" || session.Customer == "" {
		return nil, domain.ErrInvalidEvent
	}
	return &domain.SubscriptionActivated{
		Meta:             meta,
		PrincipalID:      principalID,
		BillingReference: string(session.Customer),
		SubscriptionID:   string(session.Subscription),
	}, nil
}

func parseInvoicePaid(meta domain.Meta, raw json.RawMessage) (domain.Event, error) {
	invoice, err := decodeInvoice(raw)
	if err != nil {
		return nil, err
	}
	return &domain.InvoicePaid{
		Meta:             meta,
		BillingReference: string(invoice.Customer),
		SubscriptionID:   invoice.subscriptionID(),
		FirstInvoice:     invoice.BillingReason != "subscription_cycle",
	}, nil
}

func parseInvoiceFailed(meta domain.Meta, raw json.RawMessage) (domain.Event, error) {
	invoice, err := decodeInvoice(raw)
	if err != nil {
		return nil, err
	}
	return &domain.InvoicePaymentFailed{
		Meta:             meta,
		BillingReference: string(invoice.Customer),
	}, nil
}

func parseSubscriptionDeleted(meta domain.Meta, raw json.RawMessage) (domain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if sub.Customer == "" {
		return nil, domain.ErrInvalidEvent
	}
	return &domain.SubscriptionDeleted{
		Meta:             meta,
		BillingReference: string(sub.Customer),
		SubscriptionID:   strings.TrimSpace(sub.ID),
	}, nil
}

func decodeInvoice(raw json.RawMessage) (stripeInvoice, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return stripeInvoice{}, domain.ErrInvalidPayload
	}
	if invoice.Customer == "" {
		return stripeInvoice{}, domain.ErrInvalidEvent
	}
	return invoice, nil
}

func (i stripeInvoice) subscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func parseStripeSignature(header string) (string, []string, error) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func (a *Adapter) timestamp(created int64) time.Time {
	if created == 0 {
		return a.now().UTC()
	}
	return time.Unix(created, 0).UTC()
}
