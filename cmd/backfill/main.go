// Package main backfills a wallet's trade history from the indexer API,
// then rebuilds its classifications, lots, and cached positions in one
// synchronous pass.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/estepeen/tradooor-ledger/internal/indexer"
	"github.com/estepeen/tradooor-ledger/internal/ingestion"
	"github.com/estepeen/tradooor-ledger/internal/jobqueue"
	"github.com/estepeen/tradooor-ledger/internal/recalc"
	"github.com/estepeen/tradooor-ledger/internal/storage/memory"
	"github.com/estepeen/tradooor-ledger/internal/storage/migrations"
	pgstore "github.com/estepeen/tradooor-ledger/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	wallet := flag.String("wallet", "", "Wallet address to backfill")
	days := flag.Int("days", 30, "Trailing history window in days")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	indexerURL := flag.String("indexer-url", os.Getenv("INDEXER_URL"), "Enhanced-transaction API base URL")
	indexerKey := flag.String("indexer-key", os.Getenv("INDEXER_API_KEY"), "Indexer API key")
	flag.Parse()

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags|log.Lshortfile)

	if *wallet == "" {
		logger.Fatal("--wallet is required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *indexerURL == "" {
		logger.Fatal("--indexer-url is required")
	}
	if *days < 1 {
		logger.Fatal("--days must be >= 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *wallet, *days, *postgresDSN, *indexerURL, *indexerKey, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Println("Interrupted")
			os.Exit(1)
		}
		logger.Fatalf("Backfill failed: %v", err)
	}
}

func run(ctx context.Context, address string, days int, postgresDSN, indexerURL, indexerKey string, logger *log.Logger) error {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	wallets := pgstore.NewWalletStore(pool)
	trades := pgstore.NewTradeStore(pool)
	lots := pgstore.NewLotStore(pool)

	// The recalculation runs synchronously below, so enqueued triggers only
	// need somewhere to land.
	queue := jobqueue.NewMemoryQueue(jobqueue.Options{})

	coordinator := ingestion.NewCoordinator(ingestion.CoordinatorOptions{
		WalletStore: wallets,
		TradeStore:  trades,
		Queue:       queue,
		Logger:      logger,
	})

	client := indexer.NewClient(indexerURL, indexer.WithAPIKey(indexerKey))

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	logger.Printf("Fetching history for %s since %s", address, time.Unix(since, 0).UTC().Format(time.RFC3339))

	txs, err := client.GetTransactionsForAddress(ctx, address, &indexer.SignaturesOpts{Since: since})
	if err != nil {
		return err
	}
	logger.Printf("Fetched %d transactions", len(txs))

	result, err := coordinator.IngestBatch(ctx, address, txs)
	if err != nil {
		return err
	}
	logger.Printf("Ingested %d trades (%d duplicates, %d rejected, %d failed)",
		result.Ingested, result.Duplicates, result.Rejected, result.Failed)

	// Registers the wallet even when the window held no transactions, so
	// the daemon's feeds and sweeps pick it up from here on.
	w, err := wallets.GetOrCreate(ctx, address)
	if err != nil {
		return err
	}

	worker := recalc.NewWorker(recalc.WorkerOptions{
		Queue:     queue,
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
