package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/talechto/internal/config"
	"github.com/smallbiznis/talechto/internal/observability/tracing"
	"github.com/smallbiznis/talechto/internal/payment/domain"
)

const apiBaseURL = "https://api.stripe.com"

type stripeCheckoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CheckoutClient creates hosted subscription checkout sessions over the
// Stripe REST API.
type CheckoutClient struct {
	apiKey  string
	baseURL string
	price   config.StripeConfig
	client  *http.Client
}

func NewCheckoutClient(cfg config.Config) domain.CheckoutClient {
	return newCheckoutClient(cfg.Stripe, apiBaseURL, tracing.WrapHTTPClient(&http.Client{Timeout: 12 * time.Second}))
}

func newCheckoutClient(price config.StripeConfig, baseURL string, client *http.Client) *CheckoutClient {
	return &CheckoutClient{
		apiKey:  strings.TrimSpace(price.SecretKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		price:   price,
		client:  client,
	}
}

func (c *CheckoutClient) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (string, error) {
	if c.apiKey == "" {
		return "", domain.ErrInvalidConfig
	}

	values := url.Values{}
	values.Set("mode", "subscription")
	values.Set("payment_method_types[0]", "card")
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", c.price.Currency)
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(c.price.UnitAmount, 10))
	values.Set("line_items[0][price_data][recurring][interval]", c.price.Interval)
	values.Set("line_items[0][price_data][product_data][name]", c.price.ProductName)
	values.Set("line_items[0][price_data][product_data][description]", c.price.Description)
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	values.Set("client_reference_id", req.PrincipalID)
	values.Set("metadata[userId]", req.PrincipalID)
	if email := strings.TrimSpace(req.Email); email != "" {
		values.Set("customer_email", email)
	}

	session, err := c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, "checkout:"+req.PrincipalID+":"+uuid.NewString())
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

func (c *CheckoutClient) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
) (stripeCheckoutSessionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return stripeCheckoutSessionResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return stripeCheckoutSessionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return stripeCheckoutSessionResponse{}, errors.New("stripe_request_failed")
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "stripe_request_failed"
		}
		return stripeCheckoutSessionResponse{}, errors.New(message)
	}

	var session stripeCheckoutSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return stripeCheckoutSessionResponse{}, err
	}
	if session.ID == "" || session.URL == "" {
		return stripeCheckoutSessionResponse{}, errors.New("stripe_response_invalid")
	}
	return session, nil
}
