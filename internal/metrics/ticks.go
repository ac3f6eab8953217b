package metrics

import (
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dray-io/brokerstats/internal/perf"
)

var tickEventsDesc = prometheus.NewDesc(
	"brokerstats_perf_events",
	"Number of events retained by a perf counter.",
	[]string{"counter"},
	nil,
)

var tickValueDesc = prometheus.NewDesc(
	"brokerstats_perf_value",
	"Statistics over the values retained by a perf counter.",
	[]string{"counter", "stat"},
	nil,
)

var tickRangeEventsDesc = prometheus.NewDesc(
	"brokerstats_perf_range_events",
	"Number of retained events whose value falls in a range.",
	[]string{"counter", "range"},
	nil,
)

var tickRangeShareDesc = prometheus.NewDesc(
	"brokerstats_perf_range_share_percent",
	"Percentage of retained events whose value falls in a range.",
	[]string{"counter", "range"},
	nil,
)

// DefaultTickRangeBounds split tick durations (microseconds) at 1ms, 10ms,
// 100ms and 1s.
var DefaultTickRangeBounds = []int64{1000, 10000, 100000, 1000000}

type valueRange struct {
	label  string
	lo, hi int64
}

// TicksCollector exports a snapshot of every counter in a perf.Ticks
// registry at scrape time.
type TicksCollector struct {
	ticks  *perf.Ticks
	ranges []valueRange
}

// NewTicksCollector returns a collector over ticks. Register it with
// prometheus.MustRegister or a custom registry.
//
// Ascending bounds split values into ranges [0,b0), [b0,b1) ... [bn,inf);
// each range gets an event count and a share of all retained events.
// Without bounds only the summary statistics are exported.
func NewTicksCollector(ticks *perf.Ticks, bounds ...int64) *TicksCollector {
	c := &TicksCollector{ticks: ticks}
	if len(bounds) == 0 {
		return c
	}
	lo := int64(0)
	for _, hi := range bounds {
		if hi <= lo {
			continue
		}
		c.ranges = append(c.ranges, valueRange{
			label: strconv.FormatInt(lo, 10) + "-" + strconv.FormatInt(hi, 10),
			lo:    lo,
			hi:    hi,
		})
		lo = hi
	}
	c.ranges = append(c.ranges, valueRange{
		label: strconv.FormatInt(lo, 10) + "-inf",
		lo:    lo,
		hi:    math.MaxInt64,
	})
	return c
}

func (c *TicksCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- tickEventsDesc
	desc <- tickValueDesc
	if len(c.ranges) > 0 {
		desc <- tickRangeEventsDesc
		desc <- tickRangeShareDesc
	}
}

func (c *TicksCollector) Collect(metrics chan<- prometheus.Metric) {
	c.ticks.Each(func(name string, counter *perf.Counter) {
		s := counter.Summary()
		metrics <- prometheus.MustNewConstMetric(tickEventsDesc, prometheus.GaugeValue, float64(s.Count), name)
		for _, kv := range []struct {
			stat  string
			value float64
		}{
			{"min", float64(s.Min)},
			{"max", float64(s.Max)},
			{"avg", s.Avg},
			{"tp50", float64(s.TP50)},
			{"tp99", float64(s.TP99)},
			{"tp999", float64(s.TP999)},
		} {
			metrics <- prometheus.MustNewConstMetric(tickValueDesc, prometheus.GaugeValue, kv.value, name, kv.stat)
		}
		for _, r := range c.ranges {
			metrics <- prometheus.MustNewConstMetric(tickRangeEventsDesc, prometheus.GaugeValue,
				float64(counter.CountBetween(r.lo, r.hi)), name, r.label)
			metrics <- prometheus.MustNewConstMetric(tickRangeShareDesc, prometheus.GaugeValue,
				counter.Share(r.lo, r.hi), name, r.label)
		}
	})
}
