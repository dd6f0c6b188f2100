// Package ingestion drives raw transaction envelopes through normalization,
// classification, and persistence.
//
// The coordinator is the sole writer of classified trades. Classification
// depends on the prior balance of the (wallet, token) pair, so ingestion is
// serialized per wallet; different wallets proceed concurrently. Everything
// downstream of the insert (lot matching, position caching) happens
// asynchronously via the coalesced per-wallet recalculation job.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/estepeen/tradooor-ledger/internal/classification"
	"github.com/estepeen/tradooor-ledger/internal/dedupe"
	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/idhash"
	"github.com/estepeen/tradooor-ledger/internal/jobqueue"
	"github.com/estepeen/tradooor-ledger/internal/normalization"
	"github.com/estepeen/tradooor-ledger/internal/observability"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// Coordinator ingests raw transactions into the trading ledger.
type Coordinator struct {
	wallets    storage.WalletStore
	trades     storage.TradeStore
	archive    storage.ArchiveStore
	deduper    dedupe.Deduper
	queue      jobqueue.Queue
	thresholds classification.Thresholds
	locks      *keyedMutex
	metrics    *observability.Metrics
	logger     *log.Logger
}

// CoordinatorOptions contains configuration for creating a Coordinator.
type CoordinatorOptions struct {
	WalletStore  storage.WalletStore
	TradeStore   storage.TradeStore
	Queue        jobqueue.Queue
	ArchiveStore storage.ArchiveStore      // optional analytics mirror
	Deduper      dedupe.Deduper            // optional duplicate fast path
	Thresholds   classification.Thresholds // zero value uses defaults
	Metrics      *observability.Metrics    // optional
	Logger       *log.Logger
}

// NewCoordinator creates a new ingestion coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	th := opts.Thresholds
	if th.Epsilon.IsZero() && th.ClampTriggerPercent.IsZero() {
		th = classification.DefaultThresholds()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Coordinator{
		wallets:    opts.WalletStore,
		trades:     opts.TradeStore,
		archive:    opts.ArchiveStore,
		deduper:    opts.Deduper,
		queue:      opts.Queue,
		thresholds: th,
		locks:      newKeyedMutex(),
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Ingest processes one raw transaction observed for walletAddress.
//
// Returns ErrAlreadyExists for duplicates, a *normalization.RejectError for
// transactions that are not single-token trades, and wraps storage errors
// otherwise. Rejections and duplicates are terminal; anything else may be
// retried by the caller.
func (c *Coordinator) Ingest(ctx context.Context, walletAddress string, tx *domain.RawTransaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", storage.ErrInvalidInput)
	}
	if err := ValidateAddress(walletAddress); err != nil {
		return err
	}
	if err := ValidateSignature(tx.Signature); err != nil {
		return fmt.Errorf("transaction %q: %w", tx.Signature, err)
	}

	wallet, err := c.wallets.GetOrCreate(ctx, walletAddress)
	if err != nil {
		return fmt.Errorf("resolve wallet %s: %w", walletAddress, err)
	}

	// Duplicate fast path. The seen filter is best effort; the trade
	// store's unique constraint is what actually guarantees idempotency.
	key := dedupe.Key(wallet.ID, tx.Signature)
	if c.deduper != nil {
		seen, derr := c.deduper.IsDuplicate(ctx, key)
		if derr != nil {
			c.logger.Printf("Dedupe check failed for %s: %v", tx.Signature, derr)
		} else if seen {
			c.recordDuplicate()
			return ErrAlreadyExists
		}
	}
	if _, err := c.trades.GetBySignature(ctx, wallet.ID, tx.Signature); err == nil {
		c.markSeen(ctx, key)
		c.recordDuplicate()
		return ErrAlreadyExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("duplicate lookup %s: %w", tx.Signature, err)
	}

	// Rejections are deterministic: the same envelope always rejects the
	// same way, so they are marked seen and never retried.
	swap, err := normalization.Normalize(tx, walletAddress)
	if err != nil {
		if reason, ok := normalization.ReasonOf(err); ok {
			c.logger.Printf("Skipping transaction %s for wallet %s: %v", tx.Signature, walletAddress, err)
			c.markSeen(ctx, key)
			c.recordRejection(string(reason))
			return err
		}
		return fmt.Errorf("normalize %s: %w", tx.Signature, err)
	}

	unlock := c.locks.acquire(wallet.ID)
	defer unlock()

	// Prior balance comes from a fresh replay of the persisted pair
	// history. Cached positions are unusable here: a retroactive insert
	// earlier in the history would poison every cached value after it.
	history, err := c.trades.ListByWalletToken(ctx, wallet.ID, swap.TokenMint)
	if err != nil {
		return fmt.Errorf("load history %s/%s: %w", wallet.ID, swap.TokenMint, err)
	}
	prevBalance, err := classification.BalanceBefore(history, swap.Timestamp, c.thresholds)
	if err != nil {
		return fmt.Errorf("replay balance %s/%s: %w", wallet.ID, swap.TokenMint, err)
	}

	outcome, err := classification.Classify(prevBalance, swap, c.thresholds)
	if err != nil {
		return fmt.Errorf("classify %s: %w", tx.Signature, err)
	}

	trade := &domain.ClassifiedTrade{
		ID:                    idhash.ComputeTradeID(wallet.ID, swap.TokenMint, swap.TxSignature),
		WalletID:              wallet.ID,
		NormalizedSwap:        *swap,
		Action:                outcome.Action,
		PositionChangePercent: outcome.PositionChangePercent,
		CreatedAt:             time.Now().UnixMilli(),
	}

	if err := c.trades.Insert(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost the insert race to a concurrent writer.
			c.markSeen(ctx, key)
			c.recordDuplicate()
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert trade %s: %w", trade.ID, err)
	}
	c.markSeen(ctx, key)
	c.recordIngested()

	if err := c.wallets.TouchLastTrade(ctx, wallet.ID, swap.Timestamp); err != nil {
		c.logger.Printf("Touch last trade failed for wallet %s: %v", wallet.ID, err)
	}

	if c.archive != nil {
		if err := c.archive.AppendTrades(ctx, []*domain.ClassifiedTrade{trade}); err != nil {
			c.logger.Printf("Archive append failed for trade %s: %v", trade.ID, err)
			c.recordArchiveError()
		}
	}

	// An arrival older than the pair's newest persisted trade means the
	// later classifications were computed against a stale balance. The
	// wallet-wide recalculation replays and heals them.
	if len(history) > 0 && swap.Timestamp < history[len(history)-1].Timestamp {
		c.logger.Printf("Out-of-order trade %s for wallet %s, recalculation will heal", tx.Signature, wallet.ID)
		c.recordOutOfOrder()
	}

	if err := c.queue.Enqueue(ctx, wallet.ID); err != nil {
		return fmt.Errorf("enqueue recalc for wallet %s: %w", wallet.ID, err)
	}
	return nil
}

// BatchResult summarizes one batch ingestion pass.
type BatchResult struct {
	Ingested   int
	Duplicates int
	Rejected   int
	Failed     int
}

// IngestBatch processes transactions in deterministic (timestamp, slot,
// signature) order, isolating per-transaction failures. Invalid and
// rejected transactions count as Rejected; transient failures count as
// Failed and are logged. Processing stops only on context cancellation,
// returning the partial result alongside ctx.Err().
func (c *Coordinator) IngestBatch(ctx context.Context, walletAddress string, txs []*domain.RawTransaction) (BatchResult, error) {
	ordered := make([]*domain.RawTransaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		if ordered[i].Slot != ordered[j].Slot {
			return ordered[i].Slot < ordered[j].Slot
		}
		return ordered[i].Signature < ordered[j].Signature
	})

	var res BatchResult
	for _, tx := range ordered {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch err := c.Ingest(ctx, walletAddress, tx); {
		case err == nil:
			res.Ingested++
		case errors.Is(err, ErrAlreadyExists):
			res.Duplicates++
		case normalization.IsReject(err), errors.Is(err, storage.ErrInvalidInput):
			res.Rejected++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return res, err
		default:
			res.Failed++
			c.recordFailure()
			c.logger.Printf("Ingest failed for %s: %v", tx.Signature, err)
		}
	}
	return res, nil
}

// markSeen records the key in the seen filter, best effort.
func (c *Coordinator) markSeen(ctx context.Context, key string) {
	if c.deduper == nil {
		return
	}
	if err := c.deduper.MarkSeen(ctx, key); err != nil {
		c.logger.Printf("Dedupe mark failed for %s: %v", key, err)
	}
}

func (c *Coordinator) recordIngested() {
	if c.metrics != nil {
		c.metrics.TradesIngested.Inc()
		c.metrics.LastSuccessfulIngest.SetToCurrentTime()
	}
}

func (c *Coordinator) recordDuplicate() {
	if c.metrics != nil {
		c.metrics.DuplicatesSkipped.Inc()
	}
}

func (c *Coordinator) recordRejection(reason string) {
	if c.metrics != nil {
		c.metrics.RejectionsSkipped.WithLabelValues(reason).Inc()
	}
}

func (c *Coordinator) recordFailure() {
	if c.metrics != nil {
		c.metrics.IngestionFailures.Inc()
	}
}

func (c *Coordinator) recordOutOfOrder() {
	if c.metrics != nil {
		c.metrics.OutOfOrderTrades.Inc()
	}
}

func (c *Coordinator) recordArchiveError() {
	if c.metrics != nil {
		c.metrics.ArchiveAppendErrors.Inc()
	}
}
