package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the synthesis engine.
type Metrics struct {
	SlotsTotal           *prometheus.CounterVec
	SlotAttempts         prometheus.Histogram
	Rejections           *prometheus.CounterVec
	GenerationFailures   *prometheus.CounterVec
	BatchDuration        prometheus.Histogram
	SuggestionsPersisted prometheus.Counter
	RunsTotal            *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics on the default
// registry. Later calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			SlotsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polymath_slots_total",
					Help: "Batch slots processed, by slot type and outcome",
				},
				[]string{"slot_type", "outcome"},
			),
			SlotAttempts: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "polymath_slot_attempts",
					Help:    "Generation attempts consumed per slot",
					Buckets: prometheus.LinearBuckets(1, 1, 10),
				},
			),
			Rejections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polymath_rejections_total",
					Help: "Candidates rejected by the diversity check, by reason",
				},
				[]string{"reason"},
			),
			GenerationFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polymath_generation_failures_total",
					Help: "Failed generation attempts, by kind",
				},
				[]string{"kind"},
			),
			BatchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "polymath_batch_duration_seconds",
					Help:    "Wall time of a full synthesis run",
					Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to 512s
				},
			),
			SuggestionsPersisted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "polymath_suggestions_persisted_total",
					Help: "Suggestions written to the store",
				},
			),
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "polymath_runs_total",
					Help: "Synthesis runs, by final status",
				},
				[]string{"status"},
			),
		}
	})
	return sharedMetrics
}

// The recording helpers are nil-safe so callers can run without metrics.

// RecordSlot counts a finished slot and the attempts it took.
func (m *Metrics) RecordSlot(slotType, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.SlotsTotal.WithLabelValues(slotType, outcome).Inc()
	m.SlotAttempts.Observe(float64(attempts))
}

// RecordRejection counts a diversity rejection.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

// RecordGenerationFailure counts an attempt that produced no usable draft.
func (m *Metrics) RecordGenerationFailure(kind string) {
	if m == nil {
		return
	}
	m.GenerationFailures.WithLabelValues(kind).Inc()
}

// RecordPersisted counts a stored suggestion.
func (m *Metrics) RecordPersisted() {
	if m == nil {
		return
	}
	m.SuggestionsPersisted.Inc()
}

// RecordRun observes a finished run.
func (m *Metrics) RecordRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(d.Seconds())
}
