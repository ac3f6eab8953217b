package stats

import (
	"fmt"
	"strings"

	"github.com/dray-io/brokerstats/internal/perf"
)

// Interceptor observes every Inc on an Item. Implementations must be safe
// for concurrent use and must not block.
type Interceptor interface {
	Inc(values []int64)
	// Reset is called after each report.
	Reset()
}

// BriefStats summarizes one intercepted accumulator over a report interval.
type BriefStats struct {
	Name  string
	Max   int64
	Avg   float64
	TP999 int64
}

// LatencyBriefer is implemented by interceptors that can summarize what
// they saw. Reporters append the summary to the report line.
type LatencyBriefer interface {
	LatencyBriefs() []BriefStats
}

// BriefInterceptor feeds selected accumulators of an Item into perf
// counters so a report can show max, average and tp999 per interval.
type BriefInterceptor struct {
	names    []string
	indexes  []int
	counters []*perf.Counter
}

// NewBriefInterceptor watches the named accumulators of item. Names the
// item does not have are ignored.
func NewBriefInterceptor(item *Item, cfg perf.Config, names ...string) *BriefInterceptor {
	b := &BriefInterceptor{}
	for _, name := range names {
		idx := item.Index(name)
		if idx < 0 {
			continue
		}
		b.names = append(b.names, name)
		b.indexes = append(b.indexes, idx)
		b.counters = append(b.counters, perf.NewCounter(cfg))
	}
	return b
}

func (b *BriefInterceptor) Inc(values []int64) {
	for j, idx := range b.indexes {
		if idx < len(values) {
			b.counters[j].Flow(values[idx])
		}
	}
}

func (b *BriefInterceptor) Reset() {
	for _, c := range b.counters {
		c.Reset()
	}
}

// Counter returns the perf counter behind the named accumulator.
func (b *BriefInterceptor) Counter(name string) *perf.Counter {
	for j, n := range b.names {
		if n == name {
			return b.counters[j]
		}
	}
	return nil
}

func (b *BriefInterceptor) LatencyBriefs() []BriefStats {
	out := make([]BriefStats, len(b.counters))
	for j, c := range b.counters {
		s := c.Summary()
		out[j] = BriefStats{
			Name:  b.names[j],
			Max:   s.Max,
			Avg:   s.Avg,
			TP999: min(s.TP999, s.Max),
		}
	}
	return out
}

// formatInterceptor renders "|max|avg|tp999" per brief, or "" when ic has
// nothing to say.
func formatInterceptor(ic Interceptor) string {
	lb, ok := ic.(LatencyBriefer)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, b := range lb.LatencyBriefs() {
		fmt.Fprintf(&sb, "%s%d%s%.2f%s%d", Separator, b.Max, Separator, b.Avg, Separator, b.TP999)
	}
	return sb.String()
}
