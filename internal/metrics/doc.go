// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for the statistics runtime:
//   - Report lines printed and reports skipped, per reporter
//   - Per-accumulator increments observed by reporters
//   - Scheduler firings, overlap skips, recovered panics and task latency
//   - Lag query outcomes and latency
//   - Snapshots of in-process perf counters via TicksCollector
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	reporterMetrics := metrics.NewReporterMetrics()
//	schedulerMetrics := metrics.NewSchedulerMetrics()
//
//	sched := schedule.New(schedule.Config{Workers: 4}, logger).WithMetrics(schedulerMetrics)
//	reporter := stats.NewIncrementReporter(cfg, sched, printer, logger).WithMetrics(reporterMetrics)
//
//	metricsServer := metrics.NewServer(":9090")
//	metricsServer.Start()
package metrics
