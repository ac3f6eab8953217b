package perf

import (
	"slices"
	"sync"
)

// Ticks maps names to independent Counters. A counter is created on first
// access; concurrent first accesses for the same name all observe the same
// instance.
type Ticks struct {
	cfg   Config
	clock Clock

	counters sync.Map // name -> *Counter
}

// NewTicks creates an empty registry whose counters use cfg.
func NewTicks(cfg Config) *Ticks {
	return &Ticks{
		cfg:   cfg.withDefaults(),
		clock: realClock{},
	}
}

// SetClock sets the clock used by counters created afterwards.
// Call it before the registry is shared.
func (t *Ticks) SetClock(c Clock) {
	t.clock = c
}

// Counter returns the counter registered under name, creating it if needed.
func (t *Ticks) Counter(name string) *Counter {
	if c, ok := t.counters.Load(name); ok {
		return c.(*Counter)
	}

	c := NewCounter(t.cfg)
	c.clock = t.clock
	actual, _ := t.counters.LoadOrStore(name, c)
	return actual.(*Counter)
}

// Flow records a count event on the named counter.
func (t *Ticks) Flow(name string, magnitude int64) {
	t.Counter(name).Flow(magnitude)
}

// StartTick begins a timed operation on the named counter.
func (t *Ticks) StartTick(name string) Tick {
	return t.Counter(name).StartTick()
}

// EndTick completes a timed operation started with StartTick(name).
func (t *Ticks) EndTick(name string, tick Tick) {
	t.Counter(name).EndTick(tick)
}

// Remove drops the named counter. A later access creates a fresh one.
func (t *Ticks) Remove(name string) bool {
	_, ok := t.counters.LoadAndDelete(name)
	return ok
}

// Names returns the registered counter names in sorted order.
func (t *Ticks) Names() []string {
	var names []string
	t.counters.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	slices.Sort(names)
	return names
}

// Each calls fn for every registered counter in name order.
func (t *Ticks) Each(fn func(name string, c *Counter)) {
	for _, name := range t.Names() {
		v, ok := t.counters.Load(name)
		if !ok {
			continue
		}
		fn(name, v.(*Counter))
	}
}
