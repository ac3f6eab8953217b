package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/dray-io/brokerstats/internal/perf"
)

func TestReporterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReporterMetricsWithRegistry(reg)

	m.RecordLine("broker")
	m.RecordLine("broker")
	m.RecordSkip("broker", "report", "disabled")
	m.RecordIncrement("TOPIC_PUT", "size", 120)
	m.RecordIncrement("TOPIC_PUT", "size", 0)

	if got := testutil.ToFloat64(m.LinesTotal.WithLabelValues("broker")); got != 2 {
		t.Errorf("lines = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SkippedTotal.WithLabelValues("broker", "report", "disabled")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IncrementsTotal.WithLabelValues("TOPIC_PUT", "size")); got != 120 {
		t.Errorf("increments = %v, want 120", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var r *ReporterMetrics
	r.RecordLine("x")
	r.RecordSkip("x", "sample", "disabled")
	r.RecordIncrement("k", "a", 1)

	var s *SchedulerMetrics
	s.RecordRun(0.1, true)
	s.RecordOverlapSkip()
	s.TaskScheduled(1)

	var l *LagMetrics
	l.RecordQuery(LagStatusSuccess, 0.1, 3)
}

func TestSchedulerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetricsWithRegistry(reg)

	m.RecordRun(0.002, false)
	m.RecordRun(0.004, true)
	m.RecordOverlapSkip()
	m.TaskScheduled(2)
	m.TaskScheduled(-1)

	if got := testutil.ToFloat64(m.FiringsTotal); got != 2 {
		t.Errorf("firings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PanicsTotal); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OverlapSkipsTotal); got != 1 {
		t.Errorf("skips = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ScheduledTasks); got != 1 {
		t.Errorf("scheduled = %v, want 1", got)
	}

	latency := &dto.Metric{}
	if err := m.TaskLatency.Write(latency); err != nil {
		t.Fatalf("failed to write latency metric: %v", err)
	}
	if got := latency.Histogram.GetSampleCount(); got != 2 {
		t.Errorf("latency sample count = %d, want 2", got)
	}
}

func TestLagMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLagMetricsWithRegistry(reg)

	m.RecordQuery(LagStatusSuccess, 0.01, 4)
	m.RecordQuery(LagStatusTopicNotExist, 0.001, 0)

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues(LagStatusSuccess)); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueuesScanned); got != 4 {
		t.Errorf("queues scanned = %v, want 4", got)
	}
}

func TestTicksCollector(t *testing.T) {
	ticks := perf.NewTicks(perf.DefaultConfig())
	for i := int64(1); i <= 10; i++ {
		ticks.Flow("lag.query", i)
	}
	ticks.Flow("report", 7)

	c := NewTicksCollector(ticks)
	// Two counters, one events gauge plus six stats each.
	if got := testutil.CollectAndCount(c); got != 14 {
		t.Errorf("collected %d metrics, want 14", got)
	}

	expected := `
# HELP brokerstats_perf_events Number of events retained by a perf counter.
# TYPE brokerstats_perf_events gauge
brokerstats_perf_events{counter="lag.query"} 10
brokerstats_perf_events{counter="report"} 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "brokerstats_perf_events"); err != nil {
		t.Error(err)
	}
}

func TestTicksCollector_Ranges(t *testing.T) {
	ticks := perf.NewTicks(perf.DefaultConfig())
	for _, v := range []int64{5, 50, 500, 5000} {
		ticks.Flow("lag.orders", v)
	}

	c := NewTicksCollector(ticks, 10, 100, 1000)
	// One events gauge, six stats and four ranges with two series each.
	if got := testutil.CollectAndCount(c); got != 15 {
		t.Errorf("collected %d metrics, want 15", got)
	}

	expected := `
# HELP brokerstats_perf_range_share_percent Percentage of retained events whose value falls in a range.
# TYPE brokerstats_perf_range_share_percent gauge
brokerstats_perf_range_share_percent{counter="lag.orders",range="0-10"} 25
brokerstats_perf_range_share_percent{counter="lag.orders",range="10-100"} 25
brokerstats_perf_range_share_percent{counter="lag.orders",range="100-1000"} 25
brokerstats_perf_range_share_percent{counter="lag.orders",range="1000-inf"} 25
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "brokerstats_perf_range_share_percent"); err != nil {
		t.Error(err)
	}

	expected = `
# HELP brokerstats_perf_range_events Number of retained events whose value falls in a range.
# TYPE brokerstats_perf_range_events gauge
brokerstats_perf_range_events{counter="lag.orders",range="0-10"} 1
brokerstats_perf_range_events{counter="lag.orders",range="10-100"} 1
brokerstats_perf_range_events{counter="lag.orders",range="100-1000"} 1
brokerstats_perf_range_events{counter="lag.orders",range="1000-inf"} 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "brokerstats_perf_range_events"); err != nil {
		t.Error(err)
	}
}

func TestMetadataMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetadataMetricsWithRegistry(reg, "memory")

	m.RecordGet(0.0001, true)
	m.RecordGet(0.0002, true)
	m.RecordPut(0.001, false)
	m.RecordTxn(0.002, true)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("memory", OpGet, StatusSuccess)); got != 2 {
		t.Errorf("get success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("memory", OpPut, StatusFailure)); got != 1 {
		t.Errorf("put failure = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.LatencyHistogram); got != 3 {
		t.Errorf("latency series = %d, want 3", got)
	}

	var nilMetrics *MetadataMetrics
	nilMetrics.RecordDelete(0.1, true)
}
