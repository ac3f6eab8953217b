package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics holds metrics for the periodic task scheduler.
type SchedulerMetrics struct {
	// FiringsTotal counts task executions that ran to completion or panicked.
	FiringsTotal prometheus.Counter

	// OverlapSkipsTotal counts firings dropped because the previous firing
	// of the same task was still running.
	OverlapSkipsTotal prometheus.Counter

	// PanicsTotal counts recovered task panics.
	PanicsTotal prometheus.Counter

	// TaskLatency tracks task execution time in seconds.
	TaskLatency prometheus.Histogram

	// ScheduledTasks is the number of tasks currently scheduled.
	ScheduledTasks prometheus.Gauge
}

// DefaultTaskLatencyBuckets cover sub-millisecond snapshots up to slow
// printers blocking on I/O.
var DefaultTaskLatencyBuckets = []float64{
	0.0001, // 100us
	0.0005, // 500us
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.5,    // 500ms
	1.0,    // 1s
}

// NewSchedulerMetrics creates and registers scheduler metrics.
func NewSchedulerMetrics() *SchedulerMetrics {
	return NewSchedulerMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewSchedulerMetricsWithRegistry creates scheduler metrics registered with a custom registry.
func NewSchedulerMetricsWithRegistry(reg prometheus.Registerer) *SchedulerMetrics {
	f := promauto.With(reg)
	return &SchedulerMetrics{
		FiringsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brokerstats",
			Subsystem: "scheduler",
			Name:      "firings_total",
			Help:      "Total number of task executions.",
		}),
		OverlapSkipsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brokerstats",
			Subsystem: "scheduler",
			Name:      "overlap_skips_total",
			Help:      "Total number of firings skipped because the previous run was still in flight.",
		}),
		PanicsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brokerstats",
			Subsystem: "scheduler",
			Name:      "panics_total",
			Help:      "Total number of recovered task panics.",
		}),
		TaskLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brokerstats",
			Subsystem: "scheduler",
			Name:      "task_latency_seconds",
			Help:      "Task execution time in seconds.",
			Buckets:   DefaultTaskLatencyBuckets,
		}),
		ScheduledTasks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "brokerstats",
			Subsystem: "scheduler",
			Name:      "scheduled_tasks",
			Help:      "Number of tasks currently scheduled.",
		}),
	}
}

// RecordRun records a finished task execution.
func (m *SchedulerMetrics) RecordRun(seconds float64, panicked bool) {
	if m == nil {
		return
	}
	m.FiringsTotal.Inc()
	m.TaskLatency.Observe(seconds)
	if panicked {
		m.PanicsTotal.Inc()
	}
}

// RecordOverlapSkip records a dropped firing.
func (m *SchedulerMetrics) RecordOverlapSkip() {
	if m == nil {
		return
	}
	m.OverlapSkipsTotal.Inc()
}

// TaskScheduled adjusts the scheduled task gauge by delta.
func (m *SchedulerMetrics) TaskScheduled(delta int) {
	if m == nil {
		return
	}
	m.ScheduledTasks.Add(float64(delta))
}
