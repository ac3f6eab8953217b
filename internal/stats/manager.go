package stats

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/perf"
)

// KindMeta describes a statistics kind registered with a Manager.
type KindMeta struct {
	Name string
	// ItemNames are the accumulator names of every item of this kind.
	ItemNames []string
	// BriefNames are accumulators to track with a BriefInterceptor.
	BriefNames []string
	// Reporter, if set, schedules every new item of this kind.
	Reporter *IncrementReporter
}

// Manager owns the items of every registered kind and creates them on
// first use.
type Manager struct {
	perf   perf.Config
	logger *logging.Logger

	mu    sync.RWMutex
	kinds map[string]KindMeta

	items sync.Map // Key -> *Item
}

// NewManager creates an empty manager. perfCfg configures the counters
// behind brief interceptors.
func NewManager(perfCfg perf.Config, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Global()
	}
	return &Manager{
		perf:   perfCfg,
		logger: logger.Named("stats"),
		kinds:  make(map[string]KindMeta),
	}
}

// AddKind registers or replaces a kind. Items already created keep their
// original accumulator names.
func (m *Manager) AddKind(meta KindMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta.ItemNames = slices.Clone(meta.ItemNames)
	m.kinds[meta.Name] = meta
}

// Kind returns the metadata of a registered kind.
func (m *Manager) Kind(name string) (KindMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.kinds[name]
	return meta, ok
}

// Inc adds values to the item (kind, object), creating it if needed.
// It returns false if kind is not registered.
func (m *Manager) Inc(kind, object string, values ...int64) bool {
	meta, ok := m.Kind(kind)
	if !ok {
		return false
	}
	m.item(meta, object).Inc(values...)
	return true
}

func (m *Manager) item(meta KindMeta, object string) *Item {
	key := Key{Kind: meta.Name, Object: object}
	if v, ok := m.items.Load(key); ok {
		return v.(*Item)
	}

	item := NewItem(meta.Name, object, meta.ItemNames...)
	if len(meta.BriefNames) > 0 {
		item.SetInterceptor(NewBriefInterceptor(item, m.perf, meta.BriefNames...))
	}

	v, loaded := m.items.LoadOrStore(key, item)
	if loaded {
		return v.(*Item)
	}
	if meta.Reporter != nil {
		if err := meta.Reporter.Schedule(item); err != nil {
			m.logger.Warnf("failed to schedule item", map[string]any{
				"kind":   meta.Name,
				"object": object,
				"error":  err.Error(),
			})
		}
	}
	return item
}

// Item returns the item (kind, object) if it exists.
func (m *Manager) Item(kind, object string) (*Item, bool) {
	v, ok := m.items.Load(Key{Kind: kind, Object: object})
	if !ok {
		return nil, false
	}
	return v.(*Item), true
}

// Remove drops the item and unschedules it from its kind's reporter.
func (m *Manager) Remove(kind, object string) bool {
	v, ok := m.items.LoadAndDelete(Key{Kind: kind, Object: object})
	if !ok {
		return false
	}
	if meta, ok := m.Kind(kind); ok && meta.Reporter != nil {
		meta.Reporter.Unschedule(v.(*Item))
	}
	return true
}

// Items returns every item ordered by kind then object.
func (m *Manager) Items() []*Item {
	var items []*Item
	m.items.Range(func(_, v any) bool {
		items = append(items, v.(*Item))
		return true
	})
	slices.SortFunc(items, func(a, b *Item) int {
		return cmp.Or(cmp.Compare(a.kind, b.kind), cmp.Compare(a.object, b.object))
	})
	return items
}
