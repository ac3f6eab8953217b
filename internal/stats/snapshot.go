package stats

import (
	"slices"
	"time"
)

// Snapshot is a point-in-time copy of an Item's counters, or the
// difference between two such copies. Names must not be modified.
type Snapshot struct {
	Kind        string
	Object      string
	InvokeTimes int64
	Names       []string
	Values      []int64
	TakenAt     time.Time
}

// Key returns the key of the item the snapshot was taken from.
func (s Snapshot) Key() Key {
	return Key{Kind: s.Kind, Object: s.Object}
}

// Sub returns s minus prev. A nil prev is treated as all zeros. Differences
// that would be negative are reported as zero.
func (s Snapshot) Sub(prev *Snapshot) Snapshot {
	inc := Snapshot{
		Kind:        s.Kind,
		Object:      s.Object,
		InvokeTimes: s.InvokeTimes,
		Names:       s.Names,
		Values:      slices.Clone(s.Values),
		TakenAt:     s.TakenAt,
	}
	if prev == nil {
		return inc
	}

	inc.InvokeTimes = nonNegative(s.InvokeTimes - prev.InvokeTimes)
	for i := range inc.Values {
		var p int64
		if i < len(prev.Values) {
			p = prev.Values[i]
		}
		inc.Values[i] = nonNegative(s.Values[i] - p)
	}
	return inc
}

// HasIncreased reports whether the snapshot shows at least one invocation
// and at least one non-zero accumulator.
func (s Snapshot) HasIncreased() bool {
	return s.InvokeTimes != 0 && !s.AllZero()
}

// AllZero reports whether every accumulator is zero.
func (s Snapshot) AllZero() bool {
	for _, v := range s.Values {
		if v != 0 {
			return false
		}
	}
	return true
}

// Value returns the named accumulator, or 0 if the name is unknown.
func (s Snapshot) Value(name string) int64 {
	idx := slices.Index(s.Names, name)
	if idx < 0 || idx >= len(s.Values) {
		return 0
	}
	return s.Values[idx]
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
