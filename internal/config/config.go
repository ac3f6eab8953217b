// Package config provides configuration loading and validation for
// brokerstats. Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/dray-io/brokerstats/internal/perf"
)

// PathEnv names the environment variable Load reads the config path from.
const PathEnv = "BROKERSTATS_CONFIG"

// SampleIntervalMs is the only supported sample interval.
const SampleIntervalMs = 1000

// Report outputs.
const (
	OutputLog    = "log"
	OutputStdout = "stdout"
)

// Lag sources.
const (
	SourceMemory = "memory"
	SourceKafka  = "kafka"
)

// Metadata backends.
const (
	BackendMemory = "memory"
	BackendOxia   = "oxia"
)

// Config holds all configuration for a brokerstats daemon.
type Config struct {
	Stats         StatsConfig         `yaml:"stats"`
	Perf          PerfConfig          `yaml:"perf"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Lag           LagConfig           `yaml:"lag"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type StatsConfig struct {
	Enabled          bool         `yaml:"enabled" env:"BROKERSTATS_STATS_ENABLED"`
	ReportIntervalMs int64        `yaml:"reportIntervalMs" env:"BROKERSTATS_REPORT_INTERVAL_MS"`
	InitialDelayMs   int64        `yaml:"initialDelayMs" env:"BROKERSTATS_REPORT_INITIAL_DELAY_MS"`
	AlignToInterval  bool         `yaml:"alignToInterval" env:"BROKERSTATS_REPORT_ALIGN"`
	SampleIntervalMs int64        `yaml:"sampleIntervalMs"`
	Output           string       `yaml:"output" env:"BROKERSTATS_REPORT_OUTPUT"`
	Kinds            []KindConfig `yaml:"kinds"`
}

// KindConfig declares a statistics kind.
type KindConfig struct {
	Name   string   `yaml:"name"`
	Items  []string `yaml:"items"`
	Briefs []string `yaml:"briefs,omitempty"`
	// Samples are accumulators sampled every second for the report brief.
	Samples []string `yaml:"samples,omitempty"`
}

type PerfConfig struct {
	RetentionMs       int64 `yaml:"retentionMs" env:"BROKERSTATS_PERF_RETENTION_MS"`
	BucketWidthMs     int64 `yaml:"bucketWidthMs" env:"BROKERSTATS_PERF_BUCKET_WIDTH_MS"`
	MaxEvents         int   `yaml:"maxEvents" env:"BROKERSTATS_PERF_MAX_EVENTS"`
	SummaryIntervalMs int64 `yaml:"summaryIntervalMs" env:"BROKERSTATS_PERF_SUMMARY_INTERVAL_MS"`
}

type ScheduleConfig struct {
	Workers int `yaml:"workers" env:"BROKERSTATS_SCHEDULE_WORKERS"`
}

type LagConfig struct {
	Source         string   `yaml:"source" env:"BROKERSTATS_LAG_SOURCE"`
	KafkaSeeds     []string `yaml:"kafkaSeeds" env:"BROKERSTATS_KAFKA_SEEDS" envSeparator:","`
	QueryTimeoutMs int64    `yaml:"queryTimeoutMs" env:"BROKERSTATS_LAG_QUERY_TIMEOUT_MS"`
	// OffsetSweepIntervalMs drives expiry of committed offsets in the
	// memory source. Zero disables the sweep.
	OffsetSweepIntervalMs int64 `yaml:"offsetSweepIntervalMs" env:"BROKERSTATS_OFFSET_SWEEP_INTERVAL_MS"`
}

// MetadataConfig selects where the memory lag source keeps topic
// configuration and committed offsets.
type MetadataConfig struct {
	Backend          string `yaml:"backend" env:"BROKERSTATS_METADATA_BACKEND"`
	OxiaAddr         string `yaml:"oxiaAddr" env:"BROKERSTATS_OXIA_ADDR"`
	OxiaNamespace    string `yaml:"oxiaNamespace" env:"BROKERSTATS_OXIA_NAMESPACE"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs" env:"BROKERSTATS_METADATA_REQUEST_TIMEOUT_MS"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"BROKERSTATS_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"BROKERSTATS_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"BROKERSTATS_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Stats: StatsConfig{
			Enabled:          true,
			ReportIntervalMs: 60000, // 1 minute
			AlignToInterval:  true,
			SampleIntervalMs: SampleIntervalMs,
			Output:           OutputLog,
		},
		Perf: PerfConfig{
			RetentionMs:       perf.DefaultRetention.Milliseconds(),
			BucketWidthMs:     perf.DefaultBucketWidth.Milliseconds(),
			MaxEvents:         perf.DefaultMaxEvents,
			SummaryIntervalMs: 60000,
		},
		Schedule: ScheduleConfig{
			Workers: 4,
		},
		Lag: LagConfig{
			Source:                SourceMemory,
			QueryTimeoutMs:        10000,
			OffsetSweepIntervalMs: 60000,
		},
		Metadata: MetadataConfig{
			Backend:          BackendMemory,
			OxiaNamespace:    "default",
			RequestTimeoutMs: 10000,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads the file named by BROKERSTATS_CONFIG, or starts from
// defaults when it is unset, then applies environment overrides.
func Load() (*Config, error) {
	if path := os.Getenv(PathEnv); path != "" {
		return LoadFromPath(path)
	}
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFromPath reads a YAML file over the defaults, then applies
// environment overrides. A missing file is an error.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

var (
	ErrInvalidSampleInterval = errors.New("config: sample interval must be 1000ms")
	ErrInvalidReportInterval = errors.New("config: report interval must be positive")
	ErrInvalidOutput         = errors.New("config: unknown report output")
	ErrInvalidSource         = errors.New("config: unknown lag source")
	ErrMissingSeeds          = errors.New("config: kafka source needs seed brokers")
	ErrInvalidKind           = errors.New("config: invalid stats kind")
	ErrInvalidPerf           = errors.New("config: invalid perf settings")
	ErrInvalidWorkers        = errors.New("config: workers must be positive")
	ErrInvalidBackend        = errors.New("config: unknown metadata backend")
	ErrMissingOxiaAddr       = errors.New("config: oxia backend needs an address and namespace")
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	s := c.Stats
	if s.SampleIntervalMs != SampleIntervalMs {
		return ErrInvalidSampleInterval
	}
	if s.ReportIntervalMs <= 0 || s.InitialDelayMs < 0 {
		return ErrInvalidReportInterval
	}
	if s.Output != OutputLog && s.Output != OutputStdout {
		return fmt.Errorf("%w: %q", ErrInvalidOutput, s.Output)
	}
	seen := make(map[string]bool, len(s.Kinds))
	for _, k := range s.Kinds {
		if k.Name == "" || len(k.Items) == 0 || seen[k.Name] {
			return fmt.Errorf("%w: %q", ErrInvalidKind, k.Name)
		}
		seen[k.Name] = true
		for _, name := range slices.Concat(k.Briefs, k.Samples) {
			if !slices.Contains(k.Items, name) {
				return fmt.Errorf("%w: %q has no item %q", ErrInvalidKind, k.Name, name)
			}
		}
	}

	p := c.Perf
	if p.RetentionMs <= 0 || p.BucketWidthMs <= 0 || p.BucketWidthMs > p.RetentionMs || p.MaxEvents <= 0 {
		return ErrInvalidPerf
	}
	if c.Schedule.Workers <= 0 {
		return ErrInvalidWorkers
	}

	switch c.Lag.Source {
	case SourceMemory:
	case SourceKafka:
		if len(c.Lag.KafkaSeeds) == 0 {
			return ErrMissingSeeds
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSource, c.Lag.Source)
	}

	switch c.Metadata.Backend {
	case BackendMemory:
	case BackendOxia:
		if c.Metadata.OxiaAddr == "" || c.Metadata.OxiaNamespace == "" {
			return ErrMissingOxiaAddr
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Metadata.Backend)
	}
	return nil
}

// ReportInterval returns the report interval as a duration.
func (s StatsConfig) ReportInterval() time.Duration {
	return time.Duration(s.ReportIntervalMs) * time.Millisecond
}

// InitialDelay returns the report initial delay as a duration.
func (s StatsConfig) InitialDelay() time.Duration {
	return time.Duration(s.InitialDelayMs) * time.Millisecond
}

// CounterConfig converts the perf settings for perf.NewCounter.
func (p PerfConfig) CounterConfig() perf.Config {
	return perf.Config{
		Retention:   time.Duration(p.RetentionMs) * time.Millisecond,
		BucketWidth: time.Duration(p.BucketWidthMs) * time.Millisecond,
		MaxEvents:   p.MaxEvents,
	}
}

// QueryTimeout returns the per-query deadline of lag statistics.
func (l LagConfig) QueryTimeout() time.Duration {
	return time.Duration(l.QueryTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the per-request deadline of a remote metadata backend.
func (m MetadataConfig) RequestTimeout() time.Duration {
	return time.Duration(m.RequestTimeoutMs) * time.Millisecond
}
