// Package stats tracks named groups of monotonically increasing accumulators
// and reports their per-interval increments.
//
// An Item is keyed by a statistics kind and an object (a topic, a group,
// a "topic@group" pair). Writers call Inc from any goroutine; reporters take
// Snapshots and subtract the previous one to get the increment.
package stats

import (
	"slices"
	"sync/atomic"
	"time"
)

// Key identifies an Item.
type Key struct {
	Kind   string
	Object string
}

func (k Key) String() string {
	return k.Kind + Separator + k.Object
}

type interceptorBox struct {
	Interceptor
}

// Item is a set of named accumulators plus an invocation counter.
// The accumulator names are fixed at creation.
type Item struct {
	kind   string
	object string
	names  []string

	invokeTimes atomic.Int64
	values      []atomic.Int64
	lastUpdate  atomic.Int64 // unix millis

	interceptor atomic.Pointer[interceptorBox]
}

// NewItem creates an Item with one zeroed accumulator per name.
func NewItem(kind, object string, names ...string) *Item {
	return &Item{
		kind:   kind,
		object: object,
		names:  slices.Clone(names),
		values: make([]atomic.Int64, len(names)),
	}
}

func (i *Item) Kind() string   { return i.kind }
func (i *Item) Object() string { return i.object }
func (i *Item) Key() Key       { return Key{Kind: i.kind, Object: i.object} }

// Names returns the accumulator names in positional order.
func (i *Item) Names() []string { return slices.Clone(i.names) }

// Index returns the position of the named accumulator, or -1.
func (i *Item) Index(name string) int {
	return slices.Index(i.names, name)
}

// Inc bumps the invocation counter by one and adds values positionally to
// the accumulators. Extra values are ignored; missing values add nothing.
func (i *Item) Inc(values ...int64) {
	i.invokeTimes.Add(1)
	for idx, v := range values {
		if idx >= len(i.values) {
			break
		}
		i.values[idx].Add(v)
	}
	i.lastUpdate.Store(time.Now().UnixMilli())

	if box := i.interceptor.Load(); box != nil {
		box.Inc(values)
	}
}

// InvokeTimes returns the number of Inc calls so far.
func (i *Item) InvokeTimes() int64 { return i.invokeTimes.Load() }

// Value returns the current value of the named accumulator, or 0.
func (i *Item) Value(name string) int64 {
	idx := i.Index(name)
	if idx < 0 {
		return 0
	}
	return i.values[idx].Load()
}

// LastUpdate returns the time of the most recent Inc, or the zero time.
func (i *Item) LastUpdate() time.Time {
	ms := i.lastUpdate.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetInterceptor attaches an observer that sees every Inc. Pass nil to detach.
func (i *Item) SetInterceptor(ic Interceptor) {
	if ic == nil {
		i.interceptor.Store(nil)
		return
	}
	i.interceptor.Store(&interceptorBox{ic})
}

// Interceptor returns the attached interceptor, if any.
func (i *Item) Interceptor() Interceptor {
	if box := i.interceptor.Load(); box != nil {
		return box.Interceptor
	}
	return nil
}

// Snapshot copies the current counters. Each value is read atomically but
// the set is not read under a common lock, so a concurrent Inc may be
// partly reflected.
func (i *Item) Snapshot() Snapshot {
	s := Snapshot{
		Kind:        i.kind,
		Object:      i.object,
		InvokeTimes: i.invokeTimes.Load(),
		Names:       i.names,
		Values:      make([]int64, len(i.values)),
		TakenAt:     time.Now(),
	}
	for idx := range i.values {
		s.Values[idx] = i.values[idx].Load()
	}
	return s
}
