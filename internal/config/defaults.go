package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultIndexerTimeout    = 30 * time.Second
	DefaultIndexerRetries    = 3
	DefaultIndexerPageSize   = 100
	DefaultIndexerBatchSize  = 100
	DefaultNATSSubject       = "swaps.>"
	DefaultNATSQueueGroup    = "tradooor-ledger"
	DefaultFeedBuffer        = 256
	DefaultRecalcConcurrency = 4
	DefaultRecalcPoll        = 1 * time.Second
	DefaultRecalcLease       = 2 * time.Minute
	DefaultRecalcRetryStep   = 30 * time.Second
	DefaultRecalcRetryCap    = 5 * time.Minute
	DefaultRecalcAttempts    = 5
	DefaultSweepInterval     = 1 * time.Hour
	DefaultSweepWindow       = 3 * time.Hour
	DefaultIdleAfter         = 24 * time.Hour
	DefaultIdleEvery         = 6
	DefaultIdleWindow        = 1 * time.Hour
	DefaultSweepConcurrency  = 4
	DefaultSweepRate         = 10.0
	DefaultSweepBurst        = 5
	DefaultSweepPageSize     = 100
	DefaultDedupeTTL         = 24 * time.Hour
	DefaultMetricsAddr       = ":9090"
	DefaultMetricsPath       = "/metrics"
)

func (c *Config) applyDefaults() {
	// Indexer defaults
	if c.Indexer.Timeout == 0 {
		c.Indexer.Timeout = Duration(DefaultIndexerTimeout)
	}
	if c.Indexer.MaxRetries == 0 {
		c.Indexer.MaxRetries = DefaultIndexerRetries
	}
	if c.Indexer.PageSize == 0 {
		c.Indexer.PageSize = DefaultIndexerPageSize
	}
	if c.Indexer.BatchSize == 0 {
		c.Indexer.BatchSize = DefaultIndexerBatchSize
	}

	// Feed defaults
	if c.Feed.NATS.Subject == "" {
		c.Feed.NATS.Subject = DefaultNATSSubject
	}
	if c.Feed.NATS.QueueGroup == "" {
		c.Feed.NATS.QueueGroup = DefaultNATSQueueGroup
	}
	if c.Feed.NATS.BufferSize == 0 {
		c.Feed.NATS.BufferSize = DefaultFeedBuffer
	}
	if c.Feed.WS.BufferSize == 0 {
		c.Feed.WS.BufferSize = DefaultFeedBuffer
	}

	// Recalc defaults
	if c.Recalc.Concurrency == 0 {
		c.Recalc.Concurrency = DefaultRecalcConcurrency
	}
	if c.Recalc.PollInterval == 0 {
		c.Recalc.PollInterval = Duration(DefaultRecalcPoll)
	}
	if c.Recalc.Lease == 0 {
		c.Recalc.Lease = Duration(DefaultRecalcLease)
	}
	if c.Recalc.RetryStep == 0 {
		c.Recalc.RetryStep = Duration(DefaultRecalcRetryStep)
	}
	if c.Recalc.RetryCap == 0 {
		c.Recalc.RetryCap = Duration(DefaultRecalcRetryCap)
	}
	if c.Recalc.MaxAttempts == 0 {
		c.Recalc.MaxAttempts = DefaultRecalcAttempts
	}

	// Reconcile defaults
	if c.Reconcile.Interval == 0 {
		c.Reconcile.Interval = Duration(DefaultSweepInterval)
	}
	if c.Reconcile.Window == 0 {
		c.Reconcile.Window = Duration(DefaultSweepWindow)
	}
	if c.Reconcile.IdleAfter == 0 {
		c.Reconcile.IdleAfter = Duration(DefaultIdleAfter)
	}
	if c.Reconcile.IdleEvery == 0 {
		c.Reconcile.IdleEvery = DefaultIdleEvery
	}
	if c.Reconcile.IdleWindow == 0 {
		c.Reconcile.IdleWindow = Duration(DefaultIdleWindow)
	}
	if c.Reconcile.Concurrency == 0 {
		c.Reconcile.Concurrency = DefaultSweepConcurrency
	}
	if c.Reconcile.RatePerSec == 0 {
		c.Reconcile.RatePerSec = DefaultSweepRate
	}
	if c.Reconcile.Burst == 0 {
		c.Reconcile.Burst = DefaultSweepBurst
	}
	if c.Reconcile.PageSize == 0 {
		c.Reconcile.PageSize = DefaultSweepPageSize
	}

	// Dedupe defaults
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = Duration(DefaultDedupeTTL)
	}

	// Metrics defaults
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
