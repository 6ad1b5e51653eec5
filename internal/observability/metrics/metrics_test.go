package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("format", "mp3"),
		attribute.String("principal_id", "456"),
		attribute.String("outcome", "success"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("format"))
	assert.Contains(t, keys, attribute.Key("outcome"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordConversion(t.Context(), "mp3", "success", "free", time.Second)
	m.RecordQuotaDenied(t.Context(), "quota_exceeded")

	var j *JanitorMetrics
	j.ObserveSweep(3, time.Second, nil)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordConversion(t.Context(), "wav", "error", "premium", 0)
	m.RecordPaymentEvent(t.Context(), "stripe", "invoice.paid", "applied")
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := newHTTPMetrics(reg, Config{ServiceName: "talechto", Environment: "test"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
}

func TestHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := newHTTPMetrics(reg, Config{})
	require.NoError(t, err)
	second, err := newHTTPMetrics(reg, Config{})
	require.NoError(t, err)
	assert.Same(t, first.requests, second.requests)
}

func TestJanitorMetricsObserveSweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := newJanitorMetrics(reg, Config{})
	require.NoError(t, err)

	m.ObserveSweep(4, 10*time.Millisecond, nil)
	m.ObserveSweep(0, time.Millisecond, errors.New("permission denied"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(JanitorOutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(JanitorOutcomeError)))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.removed))
}
