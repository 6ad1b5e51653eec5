package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JanitorOutcomeSuccess = "success"
	JanitorOutcomeError   = "error"
)

// JanitorMetrics tracks the scratch-directory sweeper.
type JanitorMetrics struct {
	runs     *prometheus.CounterVec
	removed  prometheus.Counter
	duration prometheus.Histogram
}

func NewJanitorMetrics(cfg Config) (*JanitorMetrics, error) {
	return newJanitorMetrics(prometheus.DefaultRegisterer, cfg)
}

func newJanitorMetrics(registerer prometheus.Registerer, cfg Config) (*JanitorMetrics, error) {
	constLabels := serviceLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "talechto_janitor_runs_total",
		Help:        "Workspace sweeps by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	removed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "talechto_janitor_removed_total",
		Help:        "Stale conversion files removed.",
		ConstLabels: constLabels,
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "talechto_janitor_duration_seconds",
		Help:        "Workspace sweep latency.",
		Buckets:     []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		ConstLabels: constLabels,
	})

	for _, c := range []prometheus.Collector{runs, removed, duration} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return &JanitorMetrics{runs: runs, removed: removed, duration: duration}, nil
}

// ObserveSweep records one sweep. Nil receivers are ignored.
func (m *JanitorMetrics) ObserveSweep(removed int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := JanitorOutcomeSuccess
	if err != nil {
		outcome = JanitorOutcomeError
	}
	m.runs.WithLabelValues(outcome).Inc()
	if removed > 0 {
		m.removed.Add(float64(removed))
	}
	m.duration.Observe(elapsed.Seconds())
}
