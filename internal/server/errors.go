package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/talechto/internal/activity/domain"
	authoauth "github.com/smallbiznis/talechto/internal/auth/oauth"
	"github.com/smallbiznis/talechto/internal/authorization"
	conversiondomain "github.com/smallbiznis/talechto/internal/conversion/domain"
	"github.com/smallbiznis/talechto/internal/identity"
	paymentdomain "github.com/smallbiznis/talechto/internal/payment/domain"
	"github.com/smallbiznis/talechto/internal/ratelimit"
	"github.com/smallbiznis/talechto/pkg/db/pagination"
)

// errorPayload is the classified form of an error. Only Message reaches the
// client.
type errorPayload struct {
	Type    string
	Message string
}

type errorResponse struct {
	Error string `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLoginRequired      = errors.New("login_required")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrMethodNotAllowed   = errors.New("method_not_allowed")
	ErrInternal           = errors.New("internal_error")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

const (
	msgConversionFailed = "Internal error trying to convert the audio"
	msgInternal         = "Internal server error"
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload.Message})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var tooLarge *conversiondomain.FileTooLargeError

	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: msgInternal}

	case errors.Is(err, conversiondomain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{Type: "quota_exceeded", Message: "Daily limit reached"}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "Too many requests, slow down"}
	case errors.Is(err, ratelimit.ErrBusy):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "A conversion is already in progress"}

	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{Type: "payload_too_large", Message: tooLarge.Error()}
	case errors.Is(err, conversiondomain.ErrMissingFile):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "No file was provided"}
	case errors.Is(err, conversiondomain.ErrUnsupportedFormat),
		errors.Is(err, conversiondomain.ErrConversionFailed):
		return http.StatusInternalServerError, errorPayload{Type: "upstream_failure", Message: msgConversionFailed}

	case errors.Is(err, authoauth.ErrMissingCode):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "No code provided"}
	case errors.Is(err, authoauth.ErrExchange),
		errors.Is(err, authoauth.ErrUserInfo),
		errors.Is(err, authoauth.ErrNotConfigured):
		return http.StatusInternalServerError, errorPayload{Type: "upstream_failure", Message: "Authentication failed"}

	case errors.Is(err, ErrLoginRequired):
		return http.StatusUnauthorized, errorPayload{Type: "unauthenticated", Message: "You need to login with Google before buying Premium"}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthenticated", Message: "Unauthorized"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "Forbidden"}

	case errors.Is(err, paymentdomain.ErrAlreadySubscribed):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "User already has an active subscription"}
	case errors.Is(err, paymentdomain.ErrCheckoutFailed):
		return http.StatusInternalServerError, errorPayload{Type: "upstream_failure", Message: "Couldn't create subscription session"}
	case errors.Is(err, paymentdomain.ErrMissingSignature),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{Type: "signature_invalid", Message: "Webhook Error: invalid signature"}
	case errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "Webhook Error: invalid payload"}
	case errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "Not Found"}

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, activitydomain.ErrInvalidAction),
		errors.Is(err, activitydomain.ErrInvalidPageToken),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "Invalid request"}
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, errorPayload{Type: "method_not_allowed", Message: "Method not allowed"}

	case errors.Is(err, identity.ErrNoAddress),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "Service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: msgInternal}
	}
}

// classifyErrorForLog feeds the request logger; the code is the sentinel text.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	for unwrapped := err; unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		code = unwrapped.Error()
	}
	return payload.Type, code
}
