package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LagMetrics holds metrics for consumer lag statistics queries.
type LagMetrics struct {
	// QueriesTotal counts queries by outcome.
	// Labels: status (success, topic_not_exist, bad_request, failure)
	QueriesTotal *prometheus.CounterVec

	// QueryLatency tracks end-to-end query latency in seconds.
	QueryLatency prometheus.Histogram

	// QueuesScanned counts queues visited across all queries.
	QueuesScanned prometheus.Counter
}

// Lag query status label values.
const (
	LagStatusSuccess       = "success"
	LagStatusTopicNotExist = "topic_not_exist"
	LagStatusBadRequest    = "bad_request"
	LagStatusFailure       = "failure"
)

// NewLagMetrics creates and registers lag query metrics.
func NewLagMetrics() *LagMetrics {
	return NewLagMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewLagMetricsWithRegistry creates lag query metrics registered with a custom registry.
func NewLagMetricsWithRegistry(reg prometheus.Registerer) *LagMetrics {
	f := promauto.With(reg)
	return &LagMetrics{
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brokerstats",
				Subsystem: "lag",
				Name:      "queries_total",
				Help:      "Total number of lag statistics queries by status.",
			},
			[]string{"status"},
		),
		QueryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brokerstats",
			Subsystem: "lag",
			Name:      "query_latency_seconds",
			Help:      "Lag statistics query latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueuesScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "brokerstats",
			Subsystem: "lag",
			Name:      "queues_scanned_total",
			Help:      "Total number of queues visited by lag queries.",
		}),
	}
}

// RecordQuery records a finished query.
func (m *LagMetrics) RecordQuery(status string, seconds float64, queues int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
	m.QueryLatency.Observe(seconds)
	if queues > 0 {
		m.QueuesScanned.Add(float64(queues))
	}
}
