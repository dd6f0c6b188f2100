// Package main replays a wallet's stored trade history through the
// classifier. With -dry-run it only prints where the stored rows diverge
// from the replay; otherwise it rewrites classifications, lots, and the
// cached positions through the same path the recalc worker uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/estepeen/tradooor-ledger/internal/classification"
	"github.com/estepeen/tradooor-ledger/internal/jobqueue"
	"github.com/estepeen/tradooor-ledger/internal/recalc"
	"github.com/estepeen/tradooor-ledger/internal/storage"
	"github.com/estepeen/tradooor-ledger/internal/storage/memory"
	pgstore "github.com/estepeen/tradooor-ledger/internal/storage/postgres"
	"github.com/estepeen/tradooor-ledger/internal/verification"
)

func main() {
	_ = godotenv.Load()

	wallet := flag.String("wallet", "", "Wallet address to reclassify")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	dryRun := flag.Bool("dry-run", false, "Report divergences without writing anything")
	flag.Parse()

	logger := log.New(os.Stdout, "[reclassify] ", log.LstdFlags|log.Lshortfile)

	if *wallet == "" {
		logger.Fatal("--wallet is required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *wallet, *postgresDSN, *dryRun, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Println("Interrupted")
			os.Exit(1)
		}
		logger.Fatalf("Reclassify failed: %v", err)
	}
}

func run(ctx context.Context, address, postgresDSN string, dryRun bool, logger *log.Logger) error {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	wallets := pgstore.NewWalletStore(pool)
	trades := pgstore.NewTradeStore(pool)
	lots := pgstore.NewLotStore(pool)

	// Unlike backfill this never registers the wallet: reclassifying an
	// address nobody tracks would just write an empty ledger.
	w, err := wallets.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("wallet %s is not tracked", address)
		}
		return err
	}

	if dryRun {
		return verify(ctx, w.ID, trades, logger)
	}

	worker := recalc.NewWorker(recalc.WorkerOptions{
		Queue:     jobqueue.NewMemoryQueue(jobqueue.Options{}),
		Trades:    trades,
		Lots:      lots,
		Positions: memory.NewPositionCache(),
		Logger:    logger,
	})

	summary, err := worker.ProcessWallet(ctx, w.ID)
	if err != nil {
		return err
	}
	logger.Printf("Rebuilt %d token pairs: %d closed lots, %d open lots, %d corrected classifications",
		summary.Pairs, summary.ClosedLots, summary.OpenLots, summary.CorrectedTrades)

	return nil
}

// verify replays every (wallet, token) history and prints the stored rows
// that disagree with the replay, without touching the database.
func verify(ctx context.Context, walletID string, trades storage.TradeStore, logger *log.Logger) error {
	mints, err := trades.ListTokenMints(ctx, walletID)
	if err != nil {
		return err
	}

	thresholds := classification.DefaultThresholds()
	dirtyPairs := 0
	divergences := 0

	for _, mint := range mints {
		history, err := trades.ListByWalletToken(ctx, walletID, mint)
		if err != nil {
			return err
		}

		report, err := verification.Check(walletID, mint, history, thresholds)
		if err != nil {
			return err
		}
		if report.Consistent() {
			continue
		}

		dirtyPairs++
		divergences += len(report.Divergences)
		for _, d := range report.Divergences {
			fmt.Printf("%s  %s  %s: stored %q, replay says %q\n",
				mint, d.TxSignature, d.Field, d.Stored, d.Replayed)
		}
	}

	if divergences == 0 {
		logger.Printf("All %d token pairs consistent, nothing to do", len(mints))
		return nil
	}

	logger.Printf("%d divergence(s) across %d of %d token pairs; rerun without --dry-run to fix",
		divergences, dirtyPairs, len(mints))
	return nil
}
