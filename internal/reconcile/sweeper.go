// Package reconcile sweeps the upstream feed for trades the push path
// dropped.
//
// Feed delivery is at-most-once, so the ledger periodically re-lists each
// wallet's upstream signatures over a trailing window, diffs them against
// what is persisted, and ingests whatever is missing through the same
// coordinator path live envelopes take. The sweep is read-heavy and
// self-limiting: a shared rate limiter gates every upstream call and a
// bounded worker group caps wallet fan-out.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/estepeen/tradooor-ledger/internal/dedupe"
	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/indexer"
	"github.com/estepeen/tradooor-ledger/internal/ingestion"
	"github.com/estepeen/tradooor-ledger/internal/observability"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// Defaults applied by NewSweeper for zero-valued options.
const (
	DefaultInterval    = time.Hour
	DefaultWindow      = 3 * time.Hour
	DefaultIdleAfter   = 24 * time.Hour
	DefaultIdleEvery   = 6
	DefaultIdleWindow  = time.Hour
	DefaultConcurrency = 4
	DefaultRate        = 10
	DefaultBurst       = 5
	DefaultPageSize    = 100
)

// Upstream is the slice of the indexer client the sweeper needs.
type Upstream interface {
	GetSignatures(ctx context.Context, address string, opts *indexer.SignaturesOpts) ([]indexer.SignatureInfo, error)
	GetTransactions(ctx context.Context, signatures []string) ([]*domain.RawTransaction, error)
}

// Ingestor is the coordinator surface the sweeper feeds.
type Ingestor interface {
	IngestBatch(ctx context.Context, walletAddress string, txs []*domain.RawTransaction) (ingestion.BatchResult, error)
}

// SweeperOptions configures a Sweeper.
type SweeperOptions struct {
	Wallets  storage.WalletStore
	Trades   storage.TradeStore
	Upstream Upstream
	Ingestor Ingestor
	Deduper  dedupe.Deduper // optional: skips signatures seen and rejected recently

	Interval   time.Duration // sweep cadence
	Window     time.Duration // trailing lookback for active wallets
	IdleAfter  time.Duration // no trade for this long marks a wallet idle
	IdleEvery  int           // idle wallets join every Nth sweep
	IdleWindow time.Duration // trailing lookback for idle wallets

	Concurrency       int     // parallel wallet sweeps
	RequestsPerSecond float64 // shared upstream rate limit
	Burst             int
	PageSize          int // signatures per listing page

	Metrics *observability.Metrics // optional
	Logger  *log.Logger
}

// Sweeper periodically reconciles the ledger against the upstream feed.
type Sweeper struct {
	wallets  storage.WalletStore
	trades   storage.TradeStore
	upstream Upstream
	ingestor Ingestor
	deduper  dedupe.Deduper

	interval   time.Duration
	window     time.Duration
	idleAfter  time.Duration
	idleEvery  int
	idleWindow time.Duration

	concurrency int
	limiter     *rate.Limiter
	pageSize    int

	metrics *observability.Metrics
	logger  *log.Logger
}

// NewSweeper creates a Sweeper, applying defaults for zero-valued options.
func NewSweeper(opts SweeperOptions) *Sweeper {
	s := &Sweeper{
		wallets:     opts.Wallets,
		trades:      opts.Trades,
		upstream:    opts.Upstream,
		ingestor:    opts.Ingestor,
		deduper:     opts.Deduper,
		interval:    opts.Interval,
		window:      opts.Window,
		idleAfter:   opts.IdleAfter,
		idleEvery:   opts.IdleEvery,
		idleWindow:  opts.IdleWindow,
		concurrency: opts.Concurrency,
		pageSize:    opts.PageSize,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}

	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if s.idleAfter <= 0 {
		s.idleAfter = DefaultIdleAfter
	}
	if s.idleEvery <= 0 {
		s.idleEvery = DefaultIdleEvery
	}
	if s.idleWindow <= 0 {
		s.idleWindow = DefaultIdleWindow
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRate
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	if s.logger == nil {
		s.logger = log.Default()
	}

	return s
}

// Run sweeps immediately and then on every interval tick until the context
// is cancelled. It blocks; callers run it in a goroutine or an errgroup.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for sweep := 0; ; sweep++ {
		includeIdle := sweep%s.idleEvery == 0
		if err := s.Sweep(ctx, includeIdle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("Sweep failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep reconciles every tracked wallet once. Idle wallets join only when
// includeIdle is set, and with the smaller idle window. Per-wallet failures
// are logged and counted, never propagated: one broken wallet must not
// starve the rest of the sweep.
func (s *Sweeper) Sweep(ctx context.Context, includeIdle bool) error {
	wallets, err := s.wallets.List(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	if s.metrics != nil {
		s.metrics.TrackedWallets.Set(float64(len(wallets)))
	}

	idleCutoff := time.Now().Add(-s.idleAfter).UnixMilli()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	swept := 0
	for _, w := range wallets {
		active := w.ActiveWithin(idleCutoff)
		if !active && !includeIdle {
			continue
		}
		window := s.window
		if !active {
			window = s.idleWindow
		}
		swept++

		g.Go(func() error {
			if err := s.sweepWallet(gctx, w, window); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Printf("Reconcile failed for wallet %s: %v", w.Address, err)
				s.recordWalletError()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.recordSweep()
	s.logger.Printf("Sweep done: %d of %d wallets checked", swept, len(wallets))
	return nil
}

// sweepWallet diffs one wallet's upstream window against the ledger and
// ingests the gap.
func (s *Sweeper) sweepWallet(ctx context.Context, w *domain.Wallet, window time.Duration) error {
	// The feed speaks Unix seconds; trades store milliseconds. Deriving
	// both bounds from the same second keeps the windows aligned.
	sinceSec := time.Now().Add(-window).Unix()
	sinceMs := sinceSec * 1000

	upstream, err := s.listUpstream(ctx, w.Address, sinceSec)
	if err != nil {
		return err
	}
	if len(upstream) == 0 {
		return nil
	}

	known, err := s.trades.ListSignaturesSince(ctx, w.ID, sinceMs)
	if err != nil {
		return fmt.Errorf("list ledger signatures: %w", err)
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, sig := range known {
		knownSet[sig] = struct{}{}
	}

	var missing []string
	for _, sig := range upstream {
		if _, ok := knownSet[sig]; ok {
			continue
		}
		if s.deduper != nil {
			// Covers signatures the coordinator saw but did not persist,
			// rejections mostly. A filter error just means a re-fetch.
			if dup, err := s.deduper.IsDuplicate(ctx, dedupe.Key(w.ID, sig)); err == nil && dup {
				continue
			}
		}
		missing = append(missing, sig)
	}
	if len(missing) == 0 {
		return nil
	}

	s.logger.Printf("Wallet %s is missing %d of %d upstream transactions", w.Address, len(missing), len(upstream))
	s.recordMissing(len(missing))

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	txs, err := s.upstream.GetTransactions(ctx, missing)
	if err != nil {
		return fmt.Errorf("fetch %d transactions: %w", len(missing), err)
	}

	res, err := s.ingestor.IngestBatch(ctx, w.Address, txs)
	if err != nil {
		return fmt.Errorf("ingest batch: %w", err)
	}
	s.logger.Printf("Reconciled wallet %s: %d ingested, %d duplicates, %d rejected, %d failed",
		w.Address, res.Ingested, res.Duplicates, res.Rejected, res.Failed)
	return nil
}

// listUpstream pages the address signature listing back to the window
// start, newest first, skipping transactions that failed on chain.
func (s *Sweeper) listUpstream(ctx context.Context, address string, sinceSec int64) ([]string, error) {
	opts := indexer.SignaturesOpts{Since: sinceSec, Limit: s.pageSize}

	var sigs []string
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := s.upstream.GetSignatures(ctx, address, &opts)
		if err != nil {
			return nil, fmt.Errorf("list upstream signatures: %w", err)
		}

		for _, info := range page {
			if info.TransactionError != nil {
				continue
			}
			if info.Timestamp < sinceSec {
				continue
			}
			sigs = append(sigs, info.Signature)
		}

		if len(page) < opts.Limit {
			return sigs, nil
		}
		oldest := page[len(page)-1]
		if oldest.Timestamp < sinceSec {
			return sigs, nil
		}
		opts.Before = oldest.Signature
	}
}

func (s *Sweeper) recordSweep() {
	if s.metrics != nil {
		s.metrics.ReconcileSweeps.Inc()
		s.metrics.LastSuccessfulReconcile.SetToCurrentTime()
	}
}

func (s *Sweeper) recordWalletError() {
	if s.metrics != nil {
		s.metrics.ReconcileWalletErrors.Inc()
	}
}

func (s *Sweeper) recordMissing(n int) {
	if s.metrics != nil {
		s.metrics.MissingTradesFound.Add(float64(n))
	}
}
