// Package main renders a wallet's trading report from stored state, as
// markdown for reading or CSV for spreadsheets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/estepeen/tradooor-ledger/internal/reporting"
	pgstore "github.com/estepeen/tradooor-ledger/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	wallet := flag.String("wallet", "", "Wallet address to report on")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	format := flag.String("format", "md", "Output format: md or csv")
	out := flag.String("out", "", "Output file (default stdout)")
	flag.Parse()

	logger := log.New(os.Stderr, "[report] ", log.LstdFlags|log.Lshortfile)

	if *wallet == "" {
		logger.Fatal("--wallet is required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *format != "md" && *format != "csv" {
		logger.Fatalf("--format must be md or csv, got %q", *format)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *wallet, *postgresDSN, *format, *out); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Println("Interrupted")
			os.Exit(1)
		}
		logger.Fatalf("Report failed: %v", err)
	}
}

func run(ctx context.Context, address, postgresDSN, format, outPath string) error {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	generator := reporting.NewGenerator(
		pgstore.NewWalletStore(pool),
		pgstore.NewTradeStore(pool),
		pgstore.NewLotStore(pool),
	)

	report, err := generator.Generate(ctx, address)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return reporting.WriteCSV(w, report)
	}
	return reporting.WriteMarkdown(w, report)
}
