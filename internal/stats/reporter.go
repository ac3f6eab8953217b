package stats

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/metrics"
	"github.com/dray-io/brokerstats/internal/schedule"
)

// SampleInterval is the fixed period of the per-item sample task.
const SampleInterval = time.Second

// ErrAlreadyScheduled is returned when an item with the same key is
// already scheduled on a reporter.
var ErrAlreadyScheduled = errors.New("stats: item already scheduled")

// Scheduler runs periodic tasks on behalf of a reporter.
type Scheduler interface {
	ScheduleAtFixedRate(name string, initialDelay, period time.Duration, fn func()) (*schedule.Handle, error)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ReporterConfig configures an IncrementReporter.
type ReporterConfig struct {
	// Name prefixes every report line.
	Name string
	// Interval between reports for each item.
	Interval time.Duration
	// InitialDelay before the first report. Ignored when AlignToInterval is set.
	InitialDelay time.Duration
	// AlignToInterval starts the first report on the next multiple of
	// Interval of the wall clock.
	AlignToInterval bool
	// SampleNames are accumulators whose per-second increments are
	// summarized in the report.
	SampleNames []string
}

type snapshotSlot struct {
	mu   sync.Mutex
	last *Snapshot
}

type registration struct {
	brief   *ItemBrief
	handles []*schedule.Handle
}

// IncrementReporter periodically reports how much each scheduled Item has
// changed since its previous report, and samples selected accumulators
// every second in between.
type IncrementReporter struct {
	cfg       ReporterConfig
	scheduler Scheduler
	printer   Printer
	logger    *logging.Logger
	metrics   *metrics.ReporterMetrics
	clock     Clock

	enabled atomic.Bool

	slots sync.Map // Key -> *snapshotSlot

	mu   sync.Mutex
	regs map[Key]*registration
}

// NewIncrementReporter creates an enabled reporter.
func NewIncrementReporter(cfg ReporterConfig, scheduler Scheduler, printer Printer, logger *logging.Logger) *IncrementReporter {
	if logger == nil {
		logger = logging.Global()
	}
	r := &IncrementReporter{
		cfg:       cfg,
		scheduler: scheduler,
		printer:   printer,
		logger:    logger.Named("stats").With(map[string]any{"reporter": cfg.Name}),
		clock:     realClock{},
		regs:      make(map[Key]*registration),
	}
	r.enabled.Store(true)
	return r
}

// WithMetrics attaches reporter metrics.
func (r *IncrementReporter) WithMetrics(m *metrics.ReporterMetrics) *IncrementReporter {
	r.metrics = m
	return r
}

// SetClock sets the clock used to align the first report.
func (r *IncrementReporter) SetClock(c Clock) {
	r.clock = c
}

// Name returns the reporter name.
func (r *IncrementReporter) Name() string { return r.cfg.Name }

// SetEnabled turns reporting and sampling on or off. Disabled firings do
// nothing and leave the stored snapshots untouched.
func (r *IncrementReporter) SetEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// Enabled reports whether the reporter is enabled.
func (r *IncrementReporter) Enabled() bool {
	return r.enabled.Load()
}

func (r *IncrementReporter) firstDelay() time.Duration {
	if !r.cfg.AlignToInterval {
		return r.cfg.InitialDelay
	}
	interval := r.cfg.Interval.Milliseconds()
	if interval <= 0 {
		return 0
	}
	now := r.clock.Now().UnixMilli()
	return time.Duration(interval-now%interval) * time.Millisecond
}

// Schedule starts the report and sample tasks for item.
func (r *IncrementReporter) Schedule(item *Item) error {
	key := item.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyScheduled, key)
	}

	reg := &registration{brief: NewItemBrief(item, r.cfg.SampleNames)}

	report, err := r.scheduler.ScheduleAtFixedRate(r.cfg.Name+".report."+key.String(), r.firstDelay(), r.cfg.Interval, func() {
		r.ReportOnce(item)
	})
	if err != nil {
		return fmt.Errorf("stats: schedule report for %s: %w", key, err)
	}
	reg.handles = append(reg.handles, report)

	sample, err := r.scheduler.ScheduleAtFixedRate(r.cfg.Name+".sample."+key.String(), SampleInterval, SampleInterval, func() {
		r.SampleOnce(item)
	})
	if err != nil {
		report.Cancel()
		return fmt.Errorf("stats: schedule sample for %s: %w", key, err)
	}
	reg.handles = append(reg.handles, sample)

	r.regs[key] = reg
	r.logger.Debugf("scheduled item", map[string]any{"kind": key.Kind, "object": key.Object})
	return nil
}

// Unschedule cancels the tasks for item and forgets its report state.
// It returns false if the item was not scheduled.
func (r *IncrementReporter) Unschedule(item *Item) bool {
	key := item.Key()

	r.mu.Lock()
	reg, ok := r.regs[key]
	delete(r.regs, key)
	r.mu.Unlock()
	if !ok {
		return false
	}

	for _, h := range reg.handles {
		h.Cancel()
	}
	r.slots.Delete(key)
	return true
}

// Scheduled reports whether an item with key is scheduled.
func (r *IncrementReporter) Scheduled(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.regs[key]
	return ok
}

func (r *IncrementReporter) brief(key Key) *ItemBrief {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.regs[key]; ok {
		return reg.brief
	}
	return nil
}

func (r *IncrementReporter) slot(key Key) *snapshotSlot {
	if s, ok := r.slots.Load(key); ok {
		return s.(*snapshotSlot)
	}
	s, _ := r.slots.LoadOrStore(key, &snapshotSlot{})
	return s.(*snapshotSlot)
}

// ReportOnce reports the increment of item since its previous report. It
// returns true if a line was printed. The first report of an item reports
// everything accumulated so far.
func (r *IncrementReporter) ReportOnce(item *Item) bool {
	if !r.Enabled() {
		r.metrics.RecordSkip(r.cfg.Name, "report", "disabled")
		return false
	}

	key := item.Key()
	snap := item.Snapshot()
	slot := r.slot(key)
	brief := r.brief(key)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	inc := snap.Sub(slot.last)
	ic := item.Interceptor()
	icText := formatInterceptor(ic)
	briefText := ""
	if brief != nil {
		briefText = brief.String()
	}

	printed := false
	if inc.HasIncreased() {
		r.print(inc, icText, briefText)
		printed = true
	} else {
		r.metrics.RecordSkip(r.cfg.Name, "report", "unchanged")
	}

	slot.last = &snap
	if ic != nil {
		ic.Reset()
	}
	if brief != nil {
		brief.Reset()
	}
	return printed
}

func (r *IncrementReporter) print(inc Snapshot, icText, briefText string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("printer panicked", map[string]any{
				"kind":   inc.Kind,
				"object": inc.Object,
				"panic":  fmt.Sprint(p),
			})
		}
	}()

	r.printer.Print(r.cfg.Name, inc, icText, briefText)
	r.metrics.RecordLine(r.cfg.Name)
	for i, name := range inc.Names {
		r.metrics.RecordIncrement(inc.Kind, name, inc.Values[i])
	}
}

// SampleOnce folds the current per-second increments of item into its
// sample brief.
func (r *IncrementReporter) SampleOnce(item *Item) {
	if !r.Enabled() {
		r.metrics.RecordSkip(r.cfg.Name, "sample", "disabled")
		return
	}
	if brief := r.brief(item.Key()); brief != nil {
		brief.Sample(item.Snapshot())
	}
}

// LastSnapshot returns the snapshot stored by the most recent report of key.
func (r *IncrementReporter) LastSnapshot(key Key) (Snapshot, bool) {
	s, ok := r.slots.Load(key)
	if !ok {
		return Snapshot{}, false
	}
	slot := s.(*snapshotSlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.last == nil {
		return Snapshot{}, false
	}
	return *slot.last, true
}

// Brief returns the sample brief of key's named accumulator.
func (r *IncrementReporter) Brief(key Key, name string) (SampleBrief, bool) {
	brief := r.brief(key)
	if brief == nil {
		return SampleBrief{}, false
	}
	return brief.Brief(name)
}
