package validation

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the validation pipeline.
// Operational visibility only; never consulted for control flow.
type Metrics struct {
	StageCallsTotal    *prometheus.CounterVec
	StageRejectsTotal  *prometheus.CounterVec
	CorrectionsTotal   *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	PipelineCallsTotal prometheus.Counter
}

// NewMetrics creates and registers pipeline metrics.
//
// sync.Once guards registration so repeated pipelines share one set of
// collectors instead of panicking on duplicate registration.
//
// Metrics:
//   - validation_stage_calls_total{stage}
//   - validation_stage_rejects_total{stage}
//   - validation_corrections_total{stage}
//   - validation_stage_duration_seconds{stage}
//   - validation_pipeline_calls_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StageCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "validation_stage_calls_total",
					Help: "Total validator stage invocations",
				},
				[]string{"stage"},
			),
			StageRejectsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "validation_stage_rejects_total",
					Help: "Total stage invocations that produced hard errors",
				},
				[]string{"stage"},
			),
			CorrectionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "validation_corrections_total",
					Help: "Total automatic corrections applied",
				},
				[]string{"stage"},
			),
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "validation_stage_duration_seconds",
					Help:    "Duration of validator stage execution",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"stage"},
			),
			PipelineCallsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "validation_pipeline_calls_total",
					Help: "Total pipeline runs",
				},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) observeStage(stage string, rejected bool, corrections int, d time.Duration) {
	if m == nil {
		return
	}
	m.StageCallsTotal.WithLabelValues(stage).Inc()
	if rejected {
		m.StageRejectsTotal.WithLabelValues(stage).Inc()
	}
	if corrections > 0 {
		m.CorrectionsTotal.WithLabelValues(stage).Add(float64(corrections))
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
