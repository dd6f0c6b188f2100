// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	TradesIngested      prometheus.Counter
	DuplicatesSkipped   prometheus.Counter
	RejectionsSkipped   *prometheus.CounterVec
	IngestionFailures   prometheus.Counter
	OutOfOrderTrades    prometheus.Counter
	EnvelopesReceived   *prometheus.CounterVec
	ArchiveAppendErrors prometheus.Counter

	// Recalculation metrics
	RecalcJobsCompleted prometheus.Counter
	RecalcJobsFailed    prometheus.Counter
	RecalcJobsExhausted prometheus.Counter
	RecalcDivergences   prometheus.Counter
	RecalcDuration      prometheus.Histogram

	// Reconciliation metrics
	ReconcileSweeps       prometheus.Counter
	ReconcileWalletErrors prometheus.Counter
	MissingTradesFound    prometheus.Counter

	// Upstream metrics
	IndexerCallLatency *prometheus.HistogramVec
	IndexerRetries     prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngest    prometheus.Gauge
	LastSuccessfulRecalc    prometheus.Gauge
	LastSuccessfulReconcile prometheus.Gauge
	TrackedWallets          prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradooor_ledger"
	}

	return &Metrics{
		// Ingestion metrics
		TradesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_ingested_total",
			Help:      "Total number of trades classified and persisted",
		}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of transactions skipped as already ingested",
		}),
		RejectionsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rejections_skipped_total",
			Help:      "Total number of transactions rejected by the normalizer, by reason",
		}, []string{"reason"}),
		IngestionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "failures_total",
			Help:      "Total number of transactions that failed ingestion with a retryable error",
		}),
		OutOfOrderTrades: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "out_of_order_trades_total",
			Help:      "Total number of trades ingested older than the wallet's newest persisted trade",
		}),
		EnvelopesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "envelopes_received_total",
			Help:      "Total number of feed envelopes received by source",
		}, []string{"source"}),
		ArchiveAppendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "archive_append_errors_total",
			Help:      "Total number of best-effort archive appends that failed",
		}),

		// Recalculation metrics
		RecalcJobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "jobs_completed_total",
			Help:      "Total number of recalculation jobs completed",
		}),
		RecalcJobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "jobs_failed_total",
			Help:      "Total number of recalculation job attempts that failed",
		}),
		RecalcJobsExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "jobs_exhausted_total",
			Help:      "Total number of recalculation jobs that exhausted max attempts",
		}),
		RecalcDivergences: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "divergences_total",
			Help:      "Total number of wallet histories whose replay diverged from stored classifications",
		}),
		RecalcDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "duration_seconds",
			Help:      "Wallet recalculation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Reconciliation metrics
		ReconcileSweeps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweeps_total",
			Help:      "Total number of reconciliation sweeps started",
		}),
		ReconcileWalletErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "wallet_errors_total",
			Help:      "Total number of wallets whose reconciliation pass failed",
		}),
		MissingTradesFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "missing_trades_found_total",
			Help:      "Total number of transactions found upstream but absent from the ledger",
		}),

		// Upstream metrics
		IndexerCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "call_latency_seconds",
			Help:      "Indexer API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		IndexerRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "retries_total",
			Help:      "Total number of indexer API calls retried after transient errors",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingest_timestamp",
			Help:      "Unix timestamp of the last successfully ingested trade",
		}),
		LastSuccessfulRecalc: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_recalc_timestamp",
			Help:      "Unix timestamp of the last completed recalculation job",
		}),
		LastSuccessfulReconcile: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_reconcile_timestamp",
			Help:      "Unix timestamp of the last completed reconciliation sweep",
		}),
		TrackedWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "tracked_wallets",
			Help:      "Number of wallets currently tracked",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeIngested increments the trades ingested counter.
func RecordTradeIngested() {
	DefaultMetrics.TradesIngested.Inc()
}

// RecordDuplicate increments the duplicates skipped counter.
func RecordDuplicate() {
	DefaultMetrics.DuplicatesSkipped.Inc()
}

// RecordRejection records a normalizer rejection by reason.
func RecordRejection(reason string) {
	DefaultMetrics.RejectionsSkipped.WithLabelValues(reason).Inc()
}

// RecordIngestionFailure increments the ingestion failures counter.
func RecordIngestionFailure() {
	DefaultMetrics.IngestionFailures.Inc()
}

// RecordOutOfOrder increments the out-of-order trades counter.
func RecordOutOfOrder() {
	DefaultMetrics.OutOfOrderTrades.Inc()
}

// RecordEnvelope records a feed envelope received from the named source.
func RecordEnvelope(source string) {
	DefaultMetrics.EnvelopesReceived.WithLabelValues(source).Inc()
}

// RecordArchiveAppendError increments the archive append errors counter.
func RecordArchiveAppendError() {
	DefaultMetrics.ArchiveAppendErrors.Inc()
}

// RecordRecalcCompleted records a completed recalculation with its duration.
func RecordRecalcCompleted(durationSeconds float64) {
	DefaultMetrics.RecalcJobsCompleted.Inc()
	DefaultMetrics.RecalcDuration.Observe(durationSeconds)
}

// RecordRecalcFailed increments the failed recalculation attempts counter.
func RecordRecalcFailed() {
	DefaultMetrics.RecalcJobsFailed.Inc()
}

// RecordRecalcExhausted increments the exhausted jobs counter.
func RecordRecalcExhausted() {
	DefaultMetrics.RecalcJobsExhausted.Inc()
}

// RecordDivergence increments the replay divergence counter.
func RecordDivergence() {
	DefaultMetrics.RecalcDivergences.Inc()
}

// RecordMissingTrades adds to the missing trades counter.
func RecordMissingTrades(n int) {
	DefaultMetrics.MissingTradesFound.Add(float64(n))
}

// RecordIndexerCall records indexer API call latency.
func RecordIndexerCall(method string, seconds float64) {
	DefaultMetrics.IndexerCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
