package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetadataMetrics holds metrics for metadata store operations.
type MetadataMetrics struct {
	// LatencyHistogram tracks operation latencies.
	// Labels: backend, operation (get, put, delete, list, txn), status (success, failure)
	LatencyHistogram *prometheus.HistogramVec

	// RequestsTotal counts operations.
	// Labels: backend, operation, status
	RequestsTotal *prometheus.CounterVec

	backend string
}

// Metadata operation label values.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpList   = "list"
	OpTxn    = "txn"
)

// Metadata operation status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// DefaultMetadataLatencyBuckets span in-process map lookups (microseconds)
// up to remote metadata round trips.
var DefaultMetadataLatencyBuckets = []float64{
	0.00001, // 10us
	0.0001,  // 100us
	0.0005,  // 0.5ms
	0.001,   // 1ms
	0.005,   // 5ms
	0.01,    // 10ms
	0.05,    // 50ms
	0.1,     // 100ms
	0.5,     // 500ms
	1.0,     // 1s
	5.0,     // 5s
}

// NewMetadataMetrics creates and registers metadata metrics for backend.
func NewMetadataMetrics(backend string) *MetadataMetrics {
	return NewMetadataMetricsWithRegistry(prometheus.DefaultRegisterer, backend)
}

// NewMetadataMetricsWithRegistry creates metadata metrics registered with a custom registry.
func NewMetadataMetricsWithRegistry(reg prometheus.Registerer, backend string) *MetadataMetrics {
	f := promauto.With(reg)
	return &MetadataMetrics{
		LatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "brokerstats",
				Subsystem: "metadata",
				Name:      "operation_latency_seconds",
				Help:      "Metadata operation latency in seconds, broken down by backend, operation and status.",
				Buckets:   DefaultMetadataLatencyBuckets,
			},
			[]string{"backend", "operation", "status"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brokerstats",
				Subsystem: "metadata",
				Name:      "operations_total",
				Help:      "Total number of metadata operations, broken down by backend, operation and status.",
			},
			[]string{"backend", "operation", "status"},
		),
		backend: backend,
	}
}

// RecordOperation records one operation's latency and outcome.
func (m *MetadataMetrics) RecordOperation(operation string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.LatencyHistogram.WithLabelValues(m.backend, operation, status).Observe(durationSeconds)
	m.RequestsTotal.WithLabelValues(m.backend, operation, status).Inc()
}

func (m *MetadataMetrics) RecordGet(durationSeconds float64, success bool) {
	m.RecordOperation(OpGet, durationSeconds, success)
}

func (m *MetadataMetrics) RecordPut(durationSeconds float64, success bool) {
	m.RecordOperation(OpPut, durationSeconds, success)
}

func (m *MetadataMetrics) RecordDelete(durationSeconds float64, success bool) {
	m.RecordOperation(OpDelete, durationSeconds, success)
}

func (m *MetadataMetrics) RecordList(durationSeconds float64, success bool) {
	m.RecordOperation(OpList, durationSeconds, success)
}

func (m *MetadataMetrics) RecordTxn(durationSeconds float64, success bool) {
	m.RecordOperation(OpTxn, durationSeconds, success)
}
