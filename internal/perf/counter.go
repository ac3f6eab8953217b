// Package perf provides in-memory, time-windowed counters for flow events and
// timed operations ("ticks").
//
// A Counter keeps raw (timestamp, value) events grouped into fixed-width time
// buckets. Buckets that fall out of the retention window are dropped lazily
// whenever the counter is touched, so no background sweep is needed. Range
// queries are exact for windows inside the retained history; percentile
// queries sort whatever is currently retained.
package perf

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// Clock provides time functions for testing.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using real time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Defaults applied by NewCounter when a Config field is left zero.
const (
	DefaultRetention   = 5 * time.Minute
	DefaultBucketWidth = time.Second
	DefaultMaxEvents   = 100_000
)

// Config controls how much history a Counter retains.
type Config struct {
	// Retention is how far back range queries can reach.
	Retention time.Duration
	// BucketWidth is the time slot covered by one bucket.
	BucketWidth time.Duration
	// MaxEvents caps the number of retained events regardless of age.
	// When exceeded the oldest events are dropped first.
	MaxEvents int
}

// DefaultConfig returns a Config with the package defaults.
func DefaultConfig() Config {
	return Config{
		Retention:   DefaultRetention,
		BucketWidth: DefaultBucketWidth,
		MaxEvents:   DefaultMaxEvents,
	}
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.BucketWidth <= 0 {
		c.BucketWidth = DefaultBucketWidth
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	return c
}

type event struct {
	at    int64 // unix nanos
	value int64
}

type bucket struct {
	slot   int64
	events []event
}

// Counter records count events and duration events and answers range,
// rate and percentile queries over its retention window.
// It is safe for concurrent use.
type Counter struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	buckets []*bucket
	size    int
}

// NewCounter creates an empty counter.
func NewCounter(cfg Config) *Counter {
	return &Counter{
		cfg:   cfg.withDefaults(),
		clock: realClock{},
	}
}

// SetClock sets the clock for testing.
func (c *Counter) SetClock(clock Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Flow records that magnitude units of work happened now.
// Negative magnitudes are ignored.
func (c *Counter) Flow(magnitude int64) {
	if magnitude < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(c.clock.Now(), magnitude)
}

// Tick marks the start of a timed operation. It is returned by StartTick and
// handed back to EndTick by the same caller.
type Tick struct {
	start time.Time
}

// IsZero reports whether the tick was never started.
func (t Tick) IsZero() bool {
	return t.start.IsZero()
}

// StartTick begins a timed operation.
func (c *Counter) StartTick() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Tick{start: c.clock.Now()}
}

// EndTick records the time elapsed since t, in microseconds.
// A zero Tick is ignored.
func (c *Counter) EndTick(t Tick) {
	if t.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	elapsed := now.Sub(t.start).Microseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	c.appendLocked(now, elapsed)
}

func (c *Counter) appendLocked(now time.Time, value int64) {
	ns := now.UnixNano()
	c.evictLocked(ns)

	slot := ns / int64(c.cfg.BucketWidth)
	n := len(c.buckets)
	if n == 0 || c.buckets[n-1].slot < slot {
		c.buckets = append(c.buckets, &bucket{slot: slot})
		n++
	}
	// If the clock stepped backwards the event still lands in the newest
	// bucket; queries filter on the event timestamp, not the bucket slot.
	b := c.buckets[n-1]
	b.events = append(b.events, event{at: ns, value: value})
	c.size++

	for c.size > c.cfg.MaxEvents {
		c.dropOldestLocked()
	}
}

// evictLocked drops every bucket whose whole slot lies before the retention cutoff.
func (c *Counter) evictLocked(nowNs int64) {
	cutoff := nowNs - int64(c.cfg.Retention)
	width := int64(c.cfg.BucketWidth)
	for len(c.buckets) > 0 && (c.buckets[0].slot+1)*width <= cutoff {
		c.size -= len(c.buckets[0].events)
		c.buckets[0] = nil
		c.buckets = c.buckets[1:]
	}
}

func (c *Counter) dropOldestLocked() {
	if len(c.buckets) == 0 {
		return
	}
	b := c.buckets[0]
	b.events = b.events[1:]
	c.size--
	if len(b.events) == 0 {
		c.buckets[0] = nil
		c.buckets = c.buckets[1:]
	}
}

// valuesLocked returns a copy of all retained values after eviction.
func (c *Counter) valuesLocked() []int64 {
	c.evictLocked(c.clock.Now().UnixNano())
	values := make([]int64, 0, c.size)
	for _, b := range c.buckets {
		for _, e := range b.events {
			values = append(values, e.value)
		}
	}
	return values
}

// Len returns the number of retained events.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(c.clock.Now().UnixNano())
	return c.size
}

// Reset discards all retained events.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets = nil
	c.size = 0
}

// Max returns the largest retained value, or 0 if nothing is retained.
func (c *Counter) Max() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := c.valuesLocked()
	if len(values) == 0 {
		return 0
	}
	return slices.Max(values)
}

// Min returns the smallest retained value, or 0 if nothing is retained.
func (c *Counter) Min() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := c.valuesLocked()
	if len(values) == 0 {
		return 0
	}
	return slices.Min(values)
}

// Avg returns the mean of the retained values, or 0 if nothing is retained.
func (c *Counter) Avg() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mean(c.valuesLocked())
}

// Count returns the number of events recorded between fromMs and toMs
// milliseconds ago. An event of age a is counted when fromMs <= a < toMs,
// so smaller offsets are more recent and an event recorded "now" belongs to
// any range starting at 0.
func (c *Counter) Count(fromMs, toMs int64) int64 {
	if toMs <= fromMs {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().UnixNano()
	c.evictLocked(now)

	newest := now - fromMs*int64(time.Millisecond)
	oldest := now - toMs*int64(time.Millisecond)

	var n int64
	for _, b := range c.buckets {
		for _, e := range b.events {
			// Timestamps in (now-to, now-from]: inclusive at the recent end
			// so Count(0, n) sees an event recorded this instant.
			if e.at > oldest && e.at <= newest {
				n++
			}
		}
	}
	return n
}

// Rate returns Count(fromMs, toMs) as events per second over the range.
func (c *Counter) Rate(fromMs, toMs int64) float64 {
	if toMs <= fromMs {
		return 0
	}
	return float64(c.Count(fromMs, toMs)) / (float64(toMs-fromMs) / 1000)
}

// TPValue returns the smallest retained value such that at least ratio of
// all retained values are less than or equal to it. Ratios at or below 0
// yield the minimum and ratios at or above 1 the maximum.
func (c *Counter) TPValue(ratio float64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.valuesLocked()
	slices.Sort(values)
	return percentile(values, ratio)
}

// CountBetween returns the number of retained events whose value lies in [lo, hi).
func (c *Counter) CountBetween(lo, hi int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.betweenLocked(lo, hi)
	return n
}

// Share returns the percentage of retained events whose value lies in [lo, hi).
func (c *Counter) Share(lo, hi int64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, total := c.betweenLocked(lo, hi)
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func (c *Counter) betweenLocked(lo, hi int64) (n, total int64) {
	values := c.valuesLocked()
	for _, v := range values {
		if v >= lo && v < hi {
			n++
		}
	}
	return n, int64(len(values))
}

// Summary is a point-in-time digest of the retained events.
type Summary struct {
	Count int64
	Min   int64
	Max   int64
	Avg   float64
	TP50  int64
	TP99  int64
	TP999 int64
}

func (s Summary) String() string {
	return fmt.Sprintf("num:%d min:%d max:%d avg:%.2f tp50:%d tp99:%d tp999:%d",
		s.Count, s.Min, s.Max, s.Avg, s.TP50, s.TP99, s.TP999)
}

// Summary computes count, extremes, mean and high percentiles in one pass
// over a sorted copy of the retained values.
func (c *Counter) Summary() Summary {
	c.mu.Lock()
	values := c.valuesLocked()
	c.mu.Unlock()

	if len(values) == 0 {
		return Summary{}
	}
	slices.Sort(values)
	return Summary{
		Count: int64(len(values)),
		Min:   values[0],
		Max:   values[len(values)-1],
		Avg:   mean(values),
		TP50:  percentile(values, 0.5),
		TP99:  percentile(values, 0.99),
		TP999: percentile(values, 0.999),
	}
}

// percentile expects sorted values.
func percentile(sorted []int64, ratio float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if ratio <= 0 {
		return sorted[0]
	}
	if ratio >= 1 {
		return sorted[n-1]
	}
	// The epsilon keeps ratio*n from rounding up past an exact rank.
	idx := int(math.Ceil(ratio*float64(n)-1e-9)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += float64(v)
	}
	return total / float64(len(values))
}
