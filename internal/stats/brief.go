package stats

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// SampleBrief keeps the max, min, total and count of a stream of samples.
// It is not safe for concurrent use on its own.
type SampleBrief struct {
	max   int64
	min   int64
	total int64
	count int64
}

// NewSampleBrief returns an empty brief.
func NewSampleBrief() SampleBrief {
	var b SampleBrief
	b.Reset()
	return b
}

// Sample folds v into the brief.
func (b *SampleBrief) Sample(v int64) {
	if v > b.max {
		b.max = v
	}
	if b.count == 0 || v < b.min {
		b.min = v
	}
	b.total += v
	b.count++
}

// Reset clears the brief.
func (b *SampleBrief) Reset() {
	b.max = 0
	b.min = math.MaxInt64
	b.total = 0
	b.count = 0
}

func (b *SampleBrief) Max() int64   { return b.max }
func (b *SampleBrief) Total() int64 { return b.total }
func (b *SampleBrief) Count() int64 { return b.count }

// Min returns the smallest sample, or 0 if there were none.
func (b *SampleBrief) Min() int64 {
	if b.count == 0 {
		return 0
	}
	return b.min
}

// Avg returns total/count, or 0 if there were no samples.
func (b *SampleBrief) Avg() float64 {
	if b.count == 0 {
		return 0
	}
	return float64(b.total) / float64(b.count)
}

// ItemBrief samples per-second increments of selected accumulators of one
// Item between two reports.
type ItemBrief struct {
	mu     sync.Mutex
	names  []string
	last   *Snapshot
	briefs []SampleBrief
}

// NewItemBrief starts sampling names from item. The item's current state
// is the baseline for the first sample.
func NewItemBrief(item *Item, names []string) *ItemBrief {
	ib := &ItemBrief{
		briefs: make([]SampleBrief, 0, len(names)),
	}
	for _, name := range names {
		if item.Index(name) < 0 {
			continue
		}
		ib.names = append(ib.names, name)
		ib.briefs = append(ib.briefs, NewSampleBrief())
	}
	snap := item.Snapshot()
	ib.last = &snap
	return ib
}

// Sample records the increment of each accumulator since the previous
// sample. Negative increments are sampled as zero.
func (ib *ItemBrief) Sample(snap Snapshot) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	for i, name := range ib.names {
		var prev int64
		if ib.last != nil {
			prev = ib.last.Value(name)
		}
		ib.briefs[i].Sample(nonNegative(snap.Value(name) - prev))
	}
	ib.last = &snap
}

// Reset clears the briefs but keeps the sampling baseline.
func (ib *ItemBrief) Reset() {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for i := range ib.briefs {
		ib.briefs[i].Reset()
	}
}

// Brief returns a copy of the named brief.
func (ib *ItemBrief) Brief(name string) (SampleBrief, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for i, n := range ib.names {
		if n == name {
			return ib.briefs[i], true
		}
	}
	return SampleBrief{}, false
}

// String renders "|max|avg" for each sampled accumulator.
func (ib *ItemBrief) String() string {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	var sb strings.Builder
	for i := range ib.briefs {
		fmt.Fprintf(&sb, "%s%d%s%.2f", Separator, ib.briefs[i].Max(), Separator, ib.briefs[i].Avg())
	}
	return sb.String()
}
