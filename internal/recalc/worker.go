// Package recalc heals derived state after out-of-order arrivals.
//
// The worker claims per-wallet jobs, replays every (wallet, token)
// history, rewrites stale classifications, and regenerates the wallet's
// complete lot set and cached positions. Every step is deterministic and
// every write replaces wholesale, so a stale claim finishing after a lease
// expiry writes the same bytes the re-claimed run wrote.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/estepeen/tradooor-ledger/internal/classification"
	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/jobqueue"
	"github.com/estepeen/tradooor-ledger/internal/lots"
	"github.com/estepeen/tradooor-ledger/internal/observability"
	"github.com/estepeen/tradooor-ledger/internal/storage"
	"github.com/estepeen/tradooor-ledger/internal/verification"
)

// Defaults applied by NewWorker for zero-valued options.
const (
	DefaultConcurrency  = 4
	DefaultPollInterval = time.Second
	DefaultLease        = 2 * time.Minute
	DefaultRetryStep    = 30 * time.Second
	DefaultRetryCap     = 5 * time.Minute
)

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Queue     jobqueue.Queue
	Trades    storage.TradeStore
	Lots      storage.LotStore
	Positions storage.PositionCache
	Archive   storage.ArchiveStore // optional analytics mirror

	Thresholds classification.Thresholds // zero value uses defaults

	Concurrency  int           // parallel claim loops
	PollInterval time.Duration // idle sleep when the queue is empty
	Lease        time.Duration // claim lease duration
	RetryStep    time.Duration // linear backoff step between attempts
	RetryCap     time.Duration // backoff ceiling

	Metrics *observability.Metrics // optional
	Logger  *log.Logger
}

// Worker drains the recalculation queue.
type Worker struct {
	queue     jobqueue.Queue
	trades    storage.TradeStore
	lots      storage.LotStore
	positions storage.PositionCache
	archive   storage.ArchiveStore

	thresholds classification.Thresholds

	concurrency  int
	pollInterval time.Duration
	lease        time.Duration
	retryStep    time.Duration
	retryCap     time.Duration

	metrics *observability.Metrics
	logger  *log.Logger
}

// NewWorker creates a Worker, applying defaults for zero-valued options.
func NewWorker(opts WorkerOptions) *Worker {
	th := opts.Thresholds
	if th.Epsilon.IsZero() && th.ClampTriggerPercent.IsZero() {
		th = classification.DefaultThresholds()
	}

	w := &Worker{
		queue:        opts.Queue,
		trades:       opts.Trades,
		lots:         opts.Lots,
		positions:    opts.Positions,
		archive:      opts.Archive,
		thresholds:   th,
		concurrency:  opts.Concurrency,
		pollInterval: opts.PollInterval,
		lease:        opts.Lease,
		retryStep:    opts.RetryStep,
		retryCap:     opts.RetryCap,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}

	if w.concurrency <= 0 {
		w.concurrency = DefaultConcurrency
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.lease <= 0 {
		w.lease = DefaultLease
	}
	if w.retryStep <= 0 {
		w.retryStep = DefaultRetryStep
	}
	if w.retryCap <= 0 {
		w.retryCap = DefaultRetryCap
	}
	if w.logger == nil {
		w.logger = log.Default()
	}

	return w
}

// Run drains the queue until the context is cancelled. It blocks; callers
// run it in a goroutine or an errgroup.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.claimLoop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) claimLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.ClaimNext(ctx, w.lease)
		if errors.Is(err, jobqueue.ErrEmpty) {
			w.sleep(ctx, w.pollInterval)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Printf("Claim failed: %v", err)
			w.sleep(ctx, w.pollInterval)
			continue
		}

		w.runJob(ctx, job)
	}
}

func (w *Worker) runJob(ctx context.Context, job *domain.RecalcJob) {
	start := time.Now()

	summary, err := w.ProcessWallet(ctx, job.WalletID)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-job. Leave the claim alone; the lease expires
			// and the job is claimed again.
			w.logger.Printf("Recalculation of wallet %s interrupted by shutdown, lease will expire", job.WalletID)
			return
		}

		w.recordFailed()
		retryAfter := w.backoff(job.Attempts)
		failErr := w.queue.Fail(ctx, job.ID, err.Error(), retryAfter)
		switch {
		case errors.Is(failErr, jobqueue.ErrExhausted):
			w.recordExhausted()
			w.logger.Printf("Giving up on wallet %s after %d attempts: %v", job.WalletID, job.Attempts, err)
		case failErr != nil:
			w.logger.Printf("Recording failure for wallet %s: %v (job error: %v)", job.WalletID, failErr, err)
		default:
			w.logger.Printf("Recalculation of wallet %s failed, retrying in %s: %v", job.WalletID, retryAfter, err)
		}
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		w.logger.Printf("Completing job for wallet %s: %v", job.WalletID, err)
	}
	w.recordCompleted(time.Since(start).Seconds())

	if summary.CorrectedTrades > 0 {
		w.logger.Printf("Recalculated wallet %s: %d pairs, %d corrected trades, %d closed lots, %d open lots",
			summary.WalletID, summary.Pairs, summary.CorrectedTrades, summary.ClosedLots, summary.OpenLots)
	}
}

// backoff returns the linear retry delay for a job that has consumed the
// given number of attempts.
func (w *Worker) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(attempts) * w.retryStep
	if d > w.retryCap {
		d = w.retryCap
	}
	return d
}

// Summary describes one wallet recalculation.
type Summary struct {
	WalletID        string
	Pairs           int // (wallet, token) histories replayed
	CorrectedTrades int // trades whose stored classification was rewritten
	ClosedLots      int
	OpenLots        int
}

// ProcessWallet replays every token history of the wallet, rewrites
// diverged classifications, and replaces the wallet's lots and cached
// positions. Also called synchronously by the backfill and maintenance
// CLIs, which bypass the queue.
func (w *Worker) ProcessWallet(ctx context.Context, walletID string) (*Summary, error) {
	mints, err := w.trades.ListTokenMints(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("list token mints for %s: %w", walletID, err)
	}

	summary := &Summary{WalletID: walletID, Pairs: len(mints)}

	var allClosed []*domain.ClosedLot
	var allOpen []*domain.OpenLot
	states := make([]*domain.PositionState, 0, len(mints))
	nowMs := time.Now().UnixMilli()

	for _, mint := range mints {
		history, err := w.trades.ListByWalletToken(ctx, walletID, mint)
		if err != nil {
			return nil, fmt.Errorf("load history %s/%s: %w", walletID, mint, err)
		}
		if len(history) == 0 {
			continue
		}

		report, err := verification.Check(walletID, mint, history, w.thresholds)
		if err != nil {
			return nil, err
		}

		if !report.Consistent() {
			w.recordDivergence()
			changed := report.Changed()
			if err := w.trades.UpdateClassifications(ctx, changed); err != nil {
				return nil, fmt.Errorf("rewrite classifications %s/%s: %w", walletID, mint, err)
			}
			summary.CorrectedTrades += len(changed)
			w.logger.Printf("Corrected %d stale classifications for wallet %s token %s", len(changed), walletID, mint)
		}

		matched, err := lots.Match(report.Corrected)
		if err != nil {
			return nil, fmt.Errorf("match lots %s/%s: %w", walletID, mint, err)
		}
		allClosed = append(allClosed, matched.Closed...)
		allOpen = append(allOpen, matched.Open...)

		balance, err := classification.Replay(report.Corrected, w.thresholds)
		if err != nil {
			return nil, fmt.Errorf("replay balance %s/%s: %w", walletID, mint, err)
		}
		states = append(states, &domain.PositionState{
			WalletID:      walletID,
			TokenMint:     mint,
			BalanceTokens: balance,
			UpdatedAt:     nowMs,
		})
	}

	// Trades first, then lots, then the cache: each layer is derived from
	// the one before it, and a crash between writes leaves only derived
	// state stale, which the next run regenerates.
	if err := w.lots.ReplaceForWallet(ctx, walletID, allClosed, allOpen); err != nil {
		return nil, fmt.Errorf("replace lots for %s: %w", walletID, err)
	}
	summary.ClosedLots = len(allClosed)
	summary.OpenLots = len(allOpen)

	for _, state := range states {
		if err := w.positions.Set(ctx, state); err != nil {
			return nil, fmt.Errorf("cache position %s/%s: %w", walletID, state.TokenMint, err)
		}
	}

	if w.archive != nil && len(allClosed) > 0 {
		if err := w.archive.AppendClosedLots(ctx, allClosed); err != nil {
			w.logger.Printf("Archiving closed lots for wallet %s: %v", walletID, err)
		}
	}

	return summary, nil
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *Worker) recordCompleted(seconds float64) {
	if w.metrics != nil {
		w.metrics.RecalcJobsCompleted.Inc()
		w.metrics.RecalcDuration.Observe(seconds)
		w.metrics.LastSuccessfulRecalc.SetToCurrentTime()
	}
}

func (w *Worker) recordFailed() {
	if w.metrics != nil {
		w.metrics.RecalcJobsFailed.Inc()
	}
}

func (w *Worker) recordExhausted() {
	if w.metrics != nil {
		w.metrics.RecalcJobsExhausted.Inc()
	}
}

func (w *Worker) recordDivergence() {
	if w.metrics != nil {
		w.metrics.RecalcDivergences.Inc()
	}
}
