package recalc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/jobqueue"
	"github.com/estepeen/tradooor-ledger/internal/storage"
	"github.com/estepeen/tradooor-ledger/internal/storage/memory"
)

func seedTrade(wallet, mint, side, amount, price string, tsMs int64, action string, pct string) *domain.ClassifiedTrade {
	amt := decimal.RequireFromString(amount)
	pr := decimal.RequireFromString(price)
	return &domain.ClassifiedTrade{
		ID:       fmt.Sprintf("trade-%s-%s-%d", mint, side, tsMs),
		WalletID: wallet,
		NormalizedSwap: domain.NormalizedSwap{
			TxSignature:       fmt.Sprintf("sig-%s-%s-%d", mint, side, tsMs),
			WalletAddress:     wallet + "-addr",
			TokenMint:         mint,
			Side:              side,
			AmountToken:       amt,
			AmountBase:        amt.Mul(pr),
			PriceBasePerToken: pr,
			BaseToken:         domain.BaseSOL,
			Timestamp:         tsMs,
		},
		Action:                action,
		PositionChangePercent: decimal.RequireFromString(pct),
		CreatedAt:             tsMs,
	}
}

type workerEnv struct {
	queue     *jobqueue.MemoryQueue
	trades    *memory.TradeStore
	lots      *memory.LotStore
	positions *memory.PositionCache
	worker    *Worker
}

func newWorkerEnv(t *testing.T, opts WorkerOptions) *workerEnv {
	t.Helper()

	env := &workerEnv{
		queue:     jobqueue.NewMemoryQueue(jobqueue.Options{}),
		trades:    memory.NewTradeStore(),
		lots:      memory.NewLotStore(),
		positions: memory.NewPositionCache(),
	}

	if opts.Queue == nil {
		opts.Queue = env.queue
	}
	if opts.Trades == nil {
		opts.Trades = env.trades
	}
	if opts.Lots == nil {
		opts.Lots = env.lots
	}
	if opts.Positions == nil {
		opts.Positions = env.positions
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	env.worker = NewWorker(opts)
	return env
}

func mustInsert(t *testing.T, store *memory.TradeStore, trades ...*domain.ClassifiedTrade) {
	t.Helper()
	for _, tr := range trades {
		if err := store.Insert(context.Background(), tr); err != nil {
			t.Fatalf("Insert(%s) error = %v", tr.ID, err)
		}
	}
}

func TestProcessWalletHealsStaleClassification(t *testing.T) {
	env := newWorkerEnv(t, WorkerOptions{})
	ctx := context.Background()

	// The sell arrived first and was classified against an empty history;
	// the buy landed afterwards with the earlier timestamp.
	sell := seedTrade("w1", "mintA", domain.SideSell, "100", "1.5", 2000, domain.ActionSell, "0")
	buy := seedTrade("w1", "mintA", domain.SideBuy, "100", "1.0", 1000, domain.ActionBuy, "100")
	mustInsert(t, env.trades, sell, buy)

	summary, err := env.worker.ProcessWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ProcessWallet() error = %v", err)
	}

	if summary.Pairs != 1 || summary.CorrectedTrades != 1 {
		t.Errorf("summary = %+v, want 1 pair and 1 corrected trade", summary)
	}

	healed, err := env.trades.GetBySignature(ctx, "w1", sell.TxSignature)
	if err != nil {
		t.Fatalf("GetBySignature() error = %v", err)
	}
	if healed.Action != domain.ActionSell {
		t.Errorf("healed action = %s, want %s", healed.Action, domain.ActionSell)
	}
	if !healed.PositionChangePercent.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("healed percent = %s, want -100", healed.PositionChangePercent)
	}

	closed, err := env.lots.ListClosedByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ListClosedByWallet() error = %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("got %d closed lots, want 1", len(closed))
	}
	lot := closed[0]
	if lot.EntrySignature != buy.TxSignature || lot.ExitSignature != sell.TxSignature {
		t.Errorf("lot signatures = %s/%s, want %s/%s",
			lot.EntrySignature, lot.ExitSignature, buy.TxSignature, sell.TxSignature)
	}
	if lot.RealizedPnlBase == nil || !lot.RealizedPnlBase.Equal(decimal.NewFromInt(50)) {
		t.Errorf("realized pnl = %v, want 50", lot.RealizedPnlBase)
	}

	open, err := env.lots.ListOpenByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ListOpenByWallet() error = %v", err)
	}
	if len(open) != 0 {
		t.Errorf("got %d open lots, want 0", len(open))
	}

	state, err := env.positions.Get(ctx, "w1", "mintA")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !state.BalanceTokens.IsZero() {
		t.Errorf("cached balance = %s, want 0", state.BalanceTokens)
	}
}

func TestProcessWalletConsistentHistory(t *testing.T) {
	env := newWorkerEnv(t, WorkerOptions{})
	ctx := context.Background()

	mustInsert(t, env.trades,
		seedTrade("w1", "mintA", domain.SideBuy, "10", "1.0", 1000, domain.ActionBuy, "100"),
		seedTrade("w1", "mintA", domain.SideBuy, "10", "1.2", 2000, domain.ActionAdd, "100"),
	)

	summary, err := env.worker.ProcessWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ProcessWallet() error = %v", err)
	}
	if summary.CorrectedTrades != 0 {
		t.Errorf("corrected %d trades on a consistent history", summary.CorrectedTrades)
	}
	if summary.OpenLots != 2 {
		t.Errorf("open lots = %d, want 2", summary.OpenLots)
	}

	state, err := env.positions.Get(ctx, "w1", "mintA")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !state.BalanceTokens.Equal(decimal.NewFromInt(20)) {
		t.Errorf("cached balance = %s, want 20", state.BalanceTokens)
	}
}

func TestProcessWalletMultipleTokens(t *testing.T) {
	env := newWorkerEnv(t, WorkerOptions{})
	ctx := context.Background()

	mustInsert(t, env.trades,
		seedTrade("w1", "mintA", domain.SideBuy, "10", "1.0", 1000, domain.ActionBuy, "100"),
		seedTrade("w1", "mintB", domain.SideBuy, "5", "2.0", 1500, domain.ActionBuy, "100"),
		seedTrade("w1", "mintB", domain.SideSell, "2", "3.0", 2500, domain.ActionRemove, "-40"),
	)

	summary, err := env.worker.ProcessWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ProcessWallet() error = %v", err)
	}
	if summary.Pairs != 2 {
		t.Errorf("pairs = %d, want 2", summary.Pairs)
	}
	if summary.ClosedLots != 1 || summary.OpenLots != 2 {
		t.Errorf("lots = %d closed / %d open, want 1/2", summary.ClosedLots, summary.OpenLots)
	}

	stateA, err := env.positions.Get(ctx, "w1", "mintA")
	if err != nil {
		t.Fatalf("Get(mintA) error = %v", err)
	}
	if !stateA.BalanceTokens.Equal(decimal.NewFromInt(10)) {
		t.Errorf("mintA balance = %s, want 10", stateA.BalanceTokens)
	}

	stateB, err := env.positions.Get(ctx, "w1", "mintB")
	if err != nil {
		t.Fatalf("Get(mintB) error = %v", err)
	}
	if !stateB.BalanceTokens.Equal(decimal.NewFromInt(3)) {
		t.Errorf("mintB balance = %s, want 3", stateB.BalanceTokens)
	}
}

func TestProcessWalletReplacesPreviousLots(t *testing.T) {
	env := newWorkerEnv(t, WorkerOptions{})
	ctx := context.Background()

	stale := &domain.OpenLot{
		ID:                "stale-lot",
		WalletID:          "w1",
		TokenMint:         "mintGone",
		SizeTokens:        decimal.NewFromInt(999),
		PriceBasePerToken: decimal.NewFromInt(1),
		CostBasisBase:     decimal.NewFromInt(999),
		BaseToken:         domain.BaseSOL,
	}
	if err := env.lots.ReplaceForWallet(ctx, "w1", nil, []*domain.OpenLot{stale}); err != nil {
		t.Fatalf("seed ReplaceForWallet() error = %v", err)
	}

	mustInsert(t, env.trades,
		seedTrade("w1", "mintA", domain.SideBuy, "10", "1.0", 1000, domain.ActionBuy, "100"),
	)

	if _, err := env.worker.ProcessWallet(ctx, "w1"); err != nil {
		t.Fatalf("ProcessWallet() error = %v", err)
	}

	open, err := env.lots.ListOpenByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ListOpenByWallet() error = %v", err)
	}
	if len(open) != 1 || open[0].TokenMint != "mintA" {
		t.Fatalf("open lots = %+v, want single mintA lot", open)
	}
}

func TestProcessWalletEmptyHistory(t *testing.T) {
	env := newWorkerEnv(t, WorkerOptions{})

	summary, err := env.worker.ProcessWallet(context.Background(), "w-unknown")
	if err != nil {
		t.Fatalf("ProcessWallet() error = %v", err)
	}
	if summary.Pairs != 0 || summary.ClosedLots != 0 || summary.OpenLots != 0 {
		t.Errorf("summary = %+v, want all zero", summary)
	}
}

type lotArchive struct {
	mu     sync.Mutex
	closed []*domain.ClosedLot
}

func (a *lotArchive) AppendTrades(_ context.Context, _ []*domain.ClassifiedTrade) error { return nil }

func (a *lotArchive) AppendClosedLots(_ context.Context, lots []*domain.ClosedLot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = append(a.closed, lots...)
	return nil
}

var _ storage.ArchiveStore = (*lotArchive)(nil)

func TestProcessWalletArchivesClosedLots(t *testing.T) {
	archive := &lotArchive{}
	env := newWorkerEnv(t, WorkerOptions{Archive: archive})
	ctx := context.Background()

	mustInsert(t, env.trades,
		seedTrade("w1", "mintA", domain.SideBuy, "10", "1.0", 1000, domain.ActionBuy, "100"),
		seedTrade("w1", "mintA", domain.SideSell, "10", "2.0", 2000, domain.ActionSell, "-100"),
	)

	if _, err := env.worker.ProcessWallet(ctx, "w1"); err != nil {
		t.Fatalf("ProcessWallet() error = %v", err)
	}

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if len(archive.closed) != 1 {
		t.Errorf("archived %d closed lots, want 1", len(archive.closed))
	}
}

func TestRunDrainsQueue(t *testing.T) {
	env := newWorkerEnv(t, WorkerOptions{
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sellA := seedTrade("w1", "mintA", domain.SideSell, "50", "1.0", 2000, domain.ActionSell, "0")
	buyA := seedTrade("w1", "mintA", domain.SideBuy, "50", "1.0", 1000, domain.ActionBuy, "100")
	sellB := seedTrade("w2", "mintB", domain.SideSell, "7", "1.0", 2000, domain.ActionSell, "0")
	buyB := seedTrade("w2", "mintB", domain.SideBuy, "7", "1.0", 1000, domain.ActionBuy, "100")
	mustInsert(t, env.trades, sellA, buyA, sellB, buyB)

	for _, w := range []string{"w1", "w2"} {
		if err := env.queue.Enqueue(ctx, w); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", w, err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- env.worker.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h1, err1 := env.trades.GetBySignature(ctx, "w1", sellA.TxSignature)
		h2, err2 := env.trades.GetBySignature(ctx, "w2", sellB.TxSignature)
		if err1 == nil && err2 == nil &&
			h1.PositionChangePercent.Equal(decimal.NewFromInt(-100)) &&
			h2.PositionChangePercent.Equal(decimal.NewFromInt(-100)) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	h1, err := env.trades.GetBySignature(context.Background(), "w1", sellA.TxSignature)
	if err != nil {
		t.Fatalf("GetBySignature(w1) error = %v", err)
	}
	if !h1.PositionChangePercent.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("w1 sell percent = %s, want -100", h1.PositionChangePercent)
	}

	if _, err := env.queue.ClaimNext(context.Background(), time.Minute); !errors.Is(err, jobqueue.ErrEmpty) {
		t.Errorf("queue not drained, ClaimNext error = %v", err)
	}
}

// countingFailStore errors every read so every claim burns an attempt.
type countingFailStore struct {
	storage.TradeStore
	calls atomic.Int64
}

func (s *countingFailStore) ListTokenMints(_ context.Context, _ string) ([]string, error) {
	s.calls.Add(1)
	return nil, errors.New("store offline")
}

func TestRunExhaustsFailingJob(t *testing.T) {
	failing := &countingFailStore{TradeStore: memory.NewTradeStore()}
	queue := jobqueue.NewMemoryQueue(jobqueue.Options{MaxAttempts: 2})
	env := newWorkerEnv(t, WorkerOptions{
		Queue:        queue,
		Trades:       failing,
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		RetryStep:    time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Enqueue(ctx, "w1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- env.worker.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && failing.calls.Load() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	// Give the loop room to (wrongly) claim the job a third time.
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-done

	if got := failing.calls.Load(); got != 2 {
		t.Errorf("job processed %d times, want exactly 2 before exhaustion", got)
	}
	if _, err := queue.ClaimNext(context.Background(), time.Minute); !errors.Is(err, jobqueue.ErrEmpty) {
		t.Errorf("exhausted job still claimable, error = %v", err)
	}
}

func TestBackoffLinearAndCapped(t *testing.T) {
	w := NewWorker(WorkerOptions{})

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 90 * time.Second},
		{10, 5 * time.Minute},
		{100, 5 * time.Minute},
	}
	for _, c := range cases {
		if got := w.backoff(c.attempts); got != c.want {
			t.Errorf("backoff(%d) = %s, want %s", c.attempts, got, c.want)
		}
	}
}
