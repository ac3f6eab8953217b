package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dray-io/brokerstats/internal/config"
	"github.com/dray-io/brokerstats/internal/lag"
	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/metadata"
	"github.com/dray-io/brokerstats/internal/metadata/oxia"
	"github.com/dray-io/brokerstats/internal/metrics"
	"github.com/dray-io/brokerstats/internal/offsets"
	"github.com/dray-io/brokerstats/internal/perf"
	"github.com/dray-io/brokerstats/internal/queues"
	"github.com/dray-io/brokerstats/internal/schedule"
	"github.com/dray-io/brokerstats/internal/stats"
	"github.com/dray-io/brokerstats/internal/topics"
)

// ReporterName prefixes every report line of the daemon.
const ReporterName = "broker"

// Kinds registered when the configuration declares none.
var defaultKinds = []config.KindConfig{
	{Name: "TOPIC_PUT_NUMS", Items: []string{"nums", "size"}, Samples: []string{"nums"}},
	{Name: "GROUP_GET_NUMS", Items: []string{"nums", "size"}, Samples: []string{"nums"}},
	{Name: "SNDBCK_PUT_NUMS", Items: []string{"nums"}},
	{Name: "TOPIC_PUT_LATENCY", Items: []string{"count", "rt"}, Briefs: []string{"rt"}},
}

// DaemonOptions contains the configuration for creating a daemon.
type DaemonOptions struct {
	Config     *config.Config
	Logger     *logging.Logger
	InstanceID string
	Version    string
}

// Daemon wires the statistics manager, reporters, lag aggregator and the
// HTTP endpoint together.
type Daemon struct {
	opts   DaemonOptions
	logger *logging.Logger

	registry   *prometheus.Registry
	scheduler  *schedule.Scheduler
	ticks      *perf.Ticks
	manager    *stats.Manager
	reporters  []*stats.IncrementReporter
	aggregator *lag.Aggregator
	server     *metrics.Server

	// Set for the memory lag source only.
	meta    metadata.Store
	topics  *topics.Store
	offsets *offsets.Store
	queues  *queues.Store
	sweeper *offsets.RetentionSweeper

	kafka *lag.KafkaSource

	ready chan struct{}

	mu      sync.Mutex
	started bool
}

// NewDaemon builds every component but starts nothing.
func NewDaemon(opts DaemonOptions) (*Daemon, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	cfg := opts.Config

	d := &Daemon{
		opts: opts,
		logger: opts.Logger.With(map[string]any{
			"instanceId": opts.InstanceID,
		}),
		registry: prometheus.NewRegistry(),
		ready:    make(chan struct{}),
	}
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d.scheduler = schedule.New(schedule.Config{Workers: cfg.Schedule.Workers}, d.logger).
		WithMetrics(metrics.NewSchedulerMetricsWithRegistry(d.registry))

	perfCfg := cfg.Perf.CounterConfig()
	d.ticks = perf.NewTicks(perfCfg)
	d.registry.MustRegister(metrics.NewTicksCollector(d.ticks, metrics.DefaultTickRangeBounds...))

	d.manager = stats.NewManager(perfCfg, d.logger)
	d.registerKinds()

	if err := d.buildLagSource(); err != nil {
		return nil, err
	}

	lagHandler := lag.NewHandler(d.aggregator, d.logger).
		WithMetrics(metrics.NewLagMetricsWithRegistry(d.registry))

	d.server = metrics.NewServerWithRegistry(cfg.Observability.MetricsAddr, d.registry).WithLogger(d.logger.Named("http"))
	d.server.Handle(lag.Path, withQueryTimeout(lagHandler, cfg.Lag.QueryTimeout()))
	d.server.Handle(incPath, &incHandler{manager: d.manager})
	d.server.Handle(itemsPath, &itemsHandler{manager: d.manager})
	d.server.Handle(reportingPath, &reportingHandler{reporters: d.reporters, logger: d.logger})
	if d.queues != nil {
		d.mountIngest()
	}
	return d, nil
}

func (d *Daemon) registerKinds() {
	cfg := d.opts.Config.Stats

	var printer stats.Printer
	switch cfg.Output {
	case config.OutputStdout:
		printer = stats.NewLinePrinter(os.Stdout)
	default:
		printer = stats.NewLogPrinter(d.logger.Named("report"))
	}
	reporterMetrics := metrics.NewReporterMetricsWithRegistry(d.registry)

	kinds := slices.Clone(cfg.Kinds)
	if len(kinds) == 0 {
		kinds = slices.Clone(defaultKinds)
	}
	kinds = append(kinds, config.KindConfig{Name: lag.StatsKind, Items: lag.StatsItemNames})

	for _, k := range kinds {
		rep := stats.NewIncrementReporter(stats.ReporterConfig{
			Name:            ReporterName,
			Interval:        cfg.ReportInterval(),
			InitialDelay:    cfg.InitialDelay(),
			AlignToInterval: cfg.AlignToInterval,
			SampleNames:     k.Samples,
		}, d.scheduler, printer, d.logger).WithMetrics(reporterMetrics)
		rep.SetEnabled(cfg.Enabled)
		d.reporters = append(d.reporters, rep)

		d.manager.AddKind(stats.KindMeta{
			Name:       k.Name,
			ItemNames:  k.Items,
			BriefNames: k.Briefs,
			Reporter:   rep,
		})
	}
}

func (d *Daemon) buildLagSource() error {
	cfg := d.opts.Config.Lag

	var (
		messages lag.MessageStore
		offs     lag.OffsetStore
		tcs      lag.TopicConfigs
	)
	switch cfg.Source {
	case config.SourceKafka:
		src, err := lag.DialKafka(cfg.KafkaSeeds)
		if err != nil {
			return err
		}
		d.kafka = src
		messages, offs, tcs = src, src, src
	default:
		meta, err := d.buildMetadata()
		if err != nil {
			return err
		}
		d.meta = meta
		d.topics = topics.NewStore(meta)
		d.offsets = offsets.NewStore(meta)
		d.queues = queues.NewStore()
		d.sweeper = offsets.NewRetentionSweeper(d.offsets, d.logger)
		messages, offs, tcs = d.queues, d.offsets, d.topics
	}

	d.aggregator = lag.NewAggregator(messages, offs, tcs, d.logger).
		WithTicks(d.ticks).
		WithStats(d.manager)
	return nil
}

// buildMetadata opens the configured metadata backend and instruments it.
func (d *Daemon) buildMetadata() (metadata.Store, error) {
	cfg := d.opts.Config.Metadata

	var store metadata.Store
	switch cfg.Backend {
	case config.BackendOxia:
		oxiaStore, err := oxia.New(oxia.Config{
			ServiceAddress: cfg.OxiaAddr,
			Namespace:      cfg.OxiaNamespace,
			RequestTimeout: cfg.RequestTimeout(),
		})
		if err != nil {
			return nil, err
		}
		store = oxiaStore
	default:
		store = metadata.NewMemoryStore()
	}
	return metadata.NewInstrumentedStore(store,
		metrics.NewMetadataMetricsWithRegistry(d.registry, cfg.Backend)), nil
}

// Start starts the HTTP endpoint and the periodic tasks, then blocks until
// ctx is done.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	cfg := d.opts.Config
	d.logger.Infof("starting daemon", map[string]any{
		"version":     d.opts.Version,
		"metricsAddr": cfg.Observability.MetricsAddr,
		"lagSource":   cfg.Lag.Source,
		"metadata":    cfg.Metadata.Backend,
		"reporting":   cfg.Stats.Enabled,
	})

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start http endpoint: %w", err)
	}

	if ms := cfg.Perf.SummaryIntervalMs; ms > 0 {
		interval := time.Duration(ms) * time.Millisecond
		if _, err := d.scheduler.ScheduleAtFixedRate("perf.summary", interval, interval, d.logPerfSummary); err != nil {
			return err
		}
	}
	if ms := cfg.Lag.OffsetSweepIntervalMs; ms > 0 && d.sweeper != nil {
		interval := time.Duration(ms) * time.Millisecond
		_, err := d.scheduler.ScheduleAtFixedRate("offsets.sweep", interval, interval, func() {
			sweepCtx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			_, _ = d.sweeper.Sweep(sweepCtx)
		})
		if err != nil {
			return err
		}
	}

	d.logger.Infof("daemon started", map[string]any{"addr": d.server.Addr()})
	close(d.ready)

	<-ctx.Done()
	return nil
}

// Ready is closed once Start has brought every component up.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the bound address of the HTTP endpoint.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Shutdown stops the HTTP endpoint and waits for running tasks.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var errs []error
	if err := d.server.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close http endpoint: %w", err))
	}

	done := make(chan struct{})
	go func() {
		d.scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("stop scheduler: %w", ctx.Err()))
	}

	if d.kafka != nil {
		d.kafka.Close()
	}
	if d.meta != nil {
		if err := d.meta.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metadata store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *Daemon) logPerfSummary() {
	logger := d.logger.Named("perf")
	d.ticks.Each(func(name string, c *perf.Counter) {
		s := c.Summary()
		if s.Count == 0 {
			return
		}
		logger.Infof("perf summary", map[string]any{
			"counter": name,
			"summary": s.String(),
		})
	})
}
