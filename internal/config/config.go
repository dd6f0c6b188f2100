// Package config loads the ledger's YAML configuration with environment
// variable substitution. Files support ${VAR} interpolation; durations are
// written in time.ParseDuration form ("30s", "1h").
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/estepeen/tradooor-ledger/internal/classification"
)

// Config is the root configuration for a ledger daemon instance.
type Config struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	Clickhouse ClickhouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Feed       FeedConfig       `yaml:"feed"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Recalc     RecalcConfig     `yaml:"recalc"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Wallets seeds the tracked set on startup. Addresses already known
	// are left untouched.
	Wallets []string `yaml:"wallets"`
}

// PostgresConfig holds the authoritative store connection.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ClickhouseConfig holds the analytics mirror connection. An empty DSN
// disables archiving.
type ClickhouseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the shared dedupe backend. An empty address falls back
// to the in-process deduper.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IndexerConfig holds the enhanced-transaction API client settings.
type IndexerConfig struct {
	URL        string   `yaml:"url"`
	APIKey     string   `yaml:"api_key"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
	PageSize   int      `yaml:"page_size"`
	BatchSize  int      `yaml:"batch_size"`
}

// FeedConfig selects the push feed sources. Both may run at once; both may
// be absent for a reconcile-only deployment.
type FeedConfig struct {
	NATS NATSConfig `yaml:"nats"`
	WS   WSConfig   `yaml:"ws"`
}

// NATSConfig holds the NATS feed source settings. An empty URL disables it.
type NATSConfig struct {
	URL        string `yaml:"url"`
	Subject    string `yaml:"subject"`
	QueueGroup string `yaml:"queue_group"`
	BufferSize int    `yaml:"buffer_size"`
}

// WSConfig holds the WebSocket feed source settings. An empty endpoint
// disables it.
type WSConfig struct {
	Endpoint   string `yaml:"endpoint"`
	BufferSize int    `yaml:"buffer_size"`
}

// ClassifierConfig overrides position classification thresholds. Values are
// decimal strings; empty fields keep the classifier defaults.
type ClassifierConfig struct {
	Epsilon             string `yaml:"epsilon"`
	ClampTriggerPercent string `yaml:"clamp_trigger_percent"`
}

// Thresholds parses the overrides into classifier thresholds.
func (c ClassifierConfig) Thresholds() (classification.Thresholds, error) {
	th := classification.DefaultThresholds()
	if c.Epsilon != "" {
		eps, err := decimal.NewFromString(c.Epsilon)
		if err != nil {
			return th, fmt.Errorf("classifier.epsilon: %w", err)
		}
		th.Epsilon = eps
	}
	if c.ClampTriggerPercent != "" {
		clamp, err := decimal.NewFromString(c.ClampTriggerPercent)
		if err != nil {
			return th, fmt.Errorf("classifier.clamp_trigger_percent: %w", err)
		}
		th.ClampTriggerPercent = clamp
	}
	return th, nil
}

// RecalcConfig holds the recalculation worker pool settings.
type RecalcConfig struct {
	Concurrency  int      `yaml:"concurrency"`
	PollInterval Duration `yaml:"poll_interval"`
	Lease        Duration `yaml:"lease"`
	RetryStep    Duration `yaml:"retry_step"`
	RetryCap     Duration `yaml:"retry_cap"`
	MaxAttempts  int      `yaml:"max_attempts"`
}

// ReconcileConfig holds the reconciliation sweep settings.
type ReconcileConfig struct {
	Interval    Duration `yaml:"interval"`
	Window      Duration `yaml:"window"`
	IdleAfter   Duration `yaml:"idle_after"`
	IdleEvery   int      `yaml:"idle_every"`
	IdleWindow  Duration `yaml:"idle_window"`
	Concurrency int      `yaml:"concurrency"`
	RatePerSec  float64  `yaml:"rate_per_sec"`
	Burst       int      `yaml:"burst"`
	PageSize    int      `yaml:"page_size"`
}

// DedupeConfig holds seen-signature retention.
type DedupeConfig struct {
	TTL Duration `yaml:"ttl"`
}

// MetricsConfig holds the Prometheus/health listener settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Duration accepts time.ParseDuration strings in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
