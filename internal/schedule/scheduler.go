// Package schedule runs named periodic tasks on a bounded worker pool.
//
// Each task fires at a fixed rate measured from its initial delay. A firing
// that comes due while the previous firing of the same task is still running
// is dropped, and missed slots are not caught up. A panicking task is
// recovered and logged; it keeps its schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/metrics"
)

// DefaultWorkers is the worker pool size used when Config.Workers is zero.
const DefaultWorkers = 4

var (
	// ErrStopped is returned when scheduling on a stopped scheduler.
	ErrStopped = errors.New("schedule: scheduler stopped")
	// ErrInvalidPeriod is returned for a non-positive period.
	ErrInvalidPeriod = errors.New("schedule: period must be positive")
)

// Config configures a Scheduler.
type Config struct {
	// Workers bounds the number of tasks executing at once.
	Workers int
}

// Scheduler fires periodic tasks. It is safe for concurrent use.
type Scheduler struct {
	logger  *logging.Logger
	metrics *metrics.SchedulerMetrics

	pool   errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	timers sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	tasks   map[*Handle]struct{}
}

// Handle identifies a scheduled task.
type Handle struct {
	s    *Scheduler
	name string

	stopCh chan struct{}
	once   sync.Once

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
}

// New creates a Scheduler with cfg.Workers workers.
func New(cfg Config, logger *logging.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = logging.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: logger.Named("schedule"),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[*Handle]struct{}),
	}
	s.pool.SetLimit(cfg.Workers)
	return s
}

// WithMetrics attaches scheduler metrics.
func (s *Scheduler) WithMetrics(m *metrics.SchedulerMetrics) *Scheduler {
	s.metrics = m
	return s
}

// ScheduleAtFixedRate runs fn first after initialDelay and then every period
// until the returned handle is cancelled or the scheduler stops.
func (s *Scheduler) ScheduleAtFixedRate(name string, initialDelay, period time.Duration, fn func()) (*Handle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s got %v", ErrInvalidPeriod, name, period)
	}
	if initialDelay < 0 {
		initialDelay = 0
	}

	h := &Handle{
		s:      s,
		name:   name,
		stopCh: make(chan struct{}),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.tasks[h] = struct{}{}
	s.timers.Add(1)
	s.mu.Unlock()

	s.metrics.TaskScheduled(1)
	go s.loop(h, initialDelay, period, fn)
	return h, nil
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task and waits for in-flight executions to finish.
// Tasks that have not started are not run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.timers.Wait()
	_ = s.pool.Wait()
}

func (s *Scheduler) loop(h *Handle, initialDelay, period time.Duration, fn func()) {
	defer s.timers.Done()
	defer s.forget(h)

	next := time.Now().Add(initialDelay)
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-timer.C:
		}

		s.fire(h, fn)

		now := time.Now()
		next = next.Add(period)
		if !next.After(now) {
			missed := now.Sub(next)/period + 1
			next = next.Add(missed * period)
		}
		timer.Reset(next.Sub(now))
	}
}

func (s *Scheduler) fire(h *Handle, fn func()) {
	if !h.running.CompareAndSwap(false, true) {
		h.skipped.Add(1)
		s.metrics.RecordOverlapSkip()
		s.logger.Debugf("skipping overlapping firing", map[string]any{"task": h.name})
		return
	}
	s.pool.Go(func() error {
		defer h.running.Store(false)
		if s.ctx.Err() != nil || h.Cancelled() {
			return nil
		}
		s.run(h, fn)
		return nil
	})
}

func (s *Scheduler) run(h *Handle, fn func()) {
	start := time.Now()
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.logger.Errorf("scheduled task panicked", map[string]any{
				"task":  h.name,
				"panic": fmt.Sprint(r),
			})
		}
		h.runs.Add(1)
		s.metrics.RecordRun(time.Since(start).Seconds(), panicked)
	}()
	fn()
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	_, ok := s.tasks[h]
	delete(s.tasks, h)
	s.mu.Unlock()
	if ok {
		s.metrics.TaskScheduled(-1)
	}
}

// Name returns the task name.
func (h *Handle) Name() string { return h.name }

// Cancel stops future firings. An execution already in progress completes.
func (h *Handle) Cancel() {
	h.once.Do(func() { close(h.stopCh) })
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

// Runs returns the number of completed executions.
func (h *Handle) Runs() int64 { return h.runs.Load() }

// Skipped returns the number of firings dropped due to overlap.
func (h *Handle) Skipped() int64 { return h.skipped.Load() }
