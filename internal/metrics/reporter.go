package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReporterMetrics holds metrics for scheduled increment reporters.
type ReporterMetrics struct {
	// LinesTotal counts report lines emitted.
	// Labels: reporter
	LinesTotal *prometheus.CounterVec

	// SkippedTotal counts report and sample firings that did nothing.
	// Labels: reporter, task (report, sample), reason (disabled, unchanged)
	SkippedTotal *prometheus.CounterVec

	// IncrementsTotal accumulates the per-interval increments that were
	// reported, broken down by statistics kind and accumulator name.
	// Labels: kind, accumulator
	IncrementsTotal *prometheus.CounterVec
}

// NewReporterMetrics creates and registers reporter metrics.
// Uses promauto for automatic registration with the default registry.
func NewReporterMetrics() *ReporterMetrics {
	return NewReporterMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewReporterMetricsWithRegistry creates reporter metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewReporterMetricsWithRegistry(reg prometheus.Registerer) *ReporterMetrics {
	f := promauto.With(reg)
	return &ReporterMetrics{
		LinesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brokerstats",
				Subsystem: "reporter",
				Name:      "lines_total",
				Help:      "Total number of report lines emitted.",
			},
			[]string{"reporter"},
		),
		SkippedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brokerstats",
				Subsystem: "reporter",
				Name:      "skipped_total",
				Help:      "Total number of report or sample firings that produced no output.",
			},
			[]string{"reporter", "task", "reason"},
		),
		IncrementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brokerstats",
				Subsystem: "reporter",
				Name:      "increments_total",
				Help:      "Sum of reported per-interval increments by kind and accumulator.",
			},
			[]string{"kind", "accumulator"},
		),
	}
}

// RecordLine records an emitted report line.
func (m *ReporterMetrics) RecordLine(reporter string) {
	if m == nil {
		return
	}
	m.LinesTotal.WithLabelValues(reporter).Inc()
}

// RecordSkip records a firing that produced no output.
func (m *ReporterMetrics) RecordSkip(reporter, task, reason string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(reporter, task, reason).Inc()
}

// RecordIncrement adds a reported increment for one accumulator.
func (m *ReporterMetrics) RecordIncrement(kind, accumulator string, value int64) {
	if m == nil || value <= 0 {
		return
	}
	m.IncrementsTotal.WithLabelValues(kind, accumulator).Add(float64(value))
}
