package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/talechto/internal/payment/domain"
	"go.uber.org/zap"
)

// Webhook payloads from Stripe stay well below this.
const maxWebhookBytes = 1 << 20

func (s *Server) CreateCheckout(c *gin.Context) {
	principalID, ok := s.authenticatedPrincipal(c)
	if !ok {
		AbortWithError(c, ErrLoginRequired)
		return
	}

	url, err := s.checkout.CreateCheckout(c.Request.Context(), principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// HandlePaymentWebhook acknowledges provider events. Signature problems are
// answered in plain text like the provider's own tooling expects.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if strings.TrimSpace(c.GetHeader(provider+"-signature")) == "" {
		c.String(http.StatusBadRequest, fmt.Sprintf("Missing %s-signature header", provider))
		return
	}

	ctx := c.Request.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		obslogger.WithContext(ctx, s.log).Warn("payment webhook body too large",
			zap.String("provider", provider),
			zap.Int64("limit_bytes", tooLarge.Limit),
		)
		c.String(http.StatusRequestEntityTooLarge, "Webhook Error: payload too large")
		return
	}
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhooks.IngestWebhook(ctx, provider, payload, c.Request.Header)
	switch {
	case err == nil, errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrMissingSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		obslogger.WithContext(ctx, s.log).Warn("payment webhook rejected",
			zap.String("provider", provider),
			zap.Error(err),
		)
		_, mapped := mapError(err)
		c.String(http.StatusBadRequest, mapped.Message)
	default:
		obslogger.WithContext(ctx, s.log).Error("payment webhook failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
		AbortWithError(c, err)
	}
}
