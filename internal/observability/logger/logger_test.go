package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	obscontext "github.com/smallbiznis/talechto/internal/observability/context"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithPrincipalID(ctx, "0123456789abcdef")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "01234567", fields["principal_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT 1": "SELECT",
		"INSERT INTO daily_usage (principal_id, day, count) VALUES (?, ?, 1) ON CONFLICT (principal_id, day) DO UPDATE SET count = daily_usage.count + 1": "UPSERT",
		"INSERT INTO principals (id) VALUES (?) ON CONFLICT (id) DO NOTHING":                                                                        "INSERT",
		"  update principals set is_premium = false":                                                                                                   "UPDATE",
		"":               "UNKNOWN",
		"VACUUM":         "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		Logger:          zap.New(core),
		ErrorClassifier: func(err error) (string, string) { return "boom", err.Error() },
	}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/convert", func(c *gin.Context) {
		c.Set("target_format", "ogg")
		_ = c.Error(errors.New("converter exploded"))
		c.Status(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/convert", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get(HeaderRequestID), 26)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		fields := entries[0].ContextMap()
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "req-42", fields["request_id"])
		assert.Equal(t, "/api/convert", fields["route"])
		assert.Equal(t, "ogg", fields["target_format"])
		assert.Equal(t, "boom", fields["error_type"])
		assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	}
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/usage", http.StatusOK, ""))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/convert", http.StatusRequestEntityTooLarge, "file_too_large"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/api/convert", http.StatusTooManyRequests, "quota_exceeded"))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("unmatched", http.StatusBadGateway, ""))
}
