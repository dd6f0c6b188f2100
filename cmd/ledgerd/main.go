// Package main runs the ledger daemon: feed sources funneled into the
// ingestion coordinator, the recalculation worker pool, the reconciliation
// sweep, and the metrics/health listener.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/estepeen/tradooor-ledger/internal/config"
	"github.com/estepeen/tradooor-ledger/internal/dedupe"
	"github.com/estepeen/tradooor-ledger/internal/indexer"
	"github.com/estepeen/tradooor-ledger/internal/ingestion"
	"github.com/estepeen/tradooor-ledger/internal/jobqueue"
	"github.com/estepeen/tradooor-ledger/internal/observability"
	"github.com/estepeen/tradooor-ledger/internal/recalc"
	"github.com/estepeen/tradooor-ledger/internal/reconcile"
	"github.com/estepeen/tradooor-ledger/internal/storage"
	chstore "github.com/estepeen/tradooor-ledger/internal/storage/clickhouse"
	"github.com/estepeen/tradooor-ledger/internal/storage/memory"
	"github.com/estepeen/tradooor-ledger/internal/storage/migrations"
	pgstore "github.com/estepeen/tradooor-ledger/internal/storage/postgres"
)

func main() {
	// .env supplies the variables the config file interpolates
	_ = godotenv.Load()

	configPath := flag.String("config", "ledger.yaml", "Path to YAML config file")
	flag.Parse()

	logger := log.New(os.Stdout, "[ledgerd] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}

	// First signal cancels the context; stop() restores default handling
	// so a second signal kills the process outright.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Daemon error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	started := time.Now()

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	wallets := pgstore.NewWalletStore(pool)
	trades := pgstore.NewTradeStore(pool)
	lots := pgstore.NewLotStore(pool)
	queue := jobqueue.NewPostgresQueue(pool, jobqueue.Options{MaxAttempts: cfg.Recalc.MaxAttempts})
	positions := memory.NewPositionCache()

	var archive storage.ArchiveStore
	if cfg.Clickhouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		archive = chstore.NewArchiveStore(conn)
		logger.Println("ClickHouse archive enabled")
	}

	var deduper dedupe.Deduper
	if cfg.Redis.Addr != "" {
		deduper, err = dedupe.NewRedisDeduper(ctx, dedupe.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Dedupe.TTL.Std(),
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Println("Redis deduper enabled")
	} else {
		deduper = dedupe.NewMemoryDeduper(cfg.Dedupe.TTL.Std())
	}
	defer deduper.Close()

	for _, addr := range cfg.Wallets {
		if _, err := wallets.GetOrCreate(ctx, addr); err != nil {
			return fmt.Errorf("seed wallet %s: %w", addr, err)
		}
	}
	if len(cfg.Wallets) > 0 {
		logger.Printf("Seeded %d tracked wallets", len(cfg.Wallets))
	}

	thresholds, err := cfg.Classifier.Thresholds()
	if err != nil {
		return err
	}

	metrics := observability.DefaultMetrics

	coordinator := ingestion.NewCoordinator(ingestion.CoordinatorOptions{
		WalletStore:  wallets,
		TradeStore:   trades,
		Queue:        queue,
		ArchiveStore: archive,
		Deduper:      deduper,
		Thresholds:   thresholds,
		Metrics:      metrics,
		Logger:       log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile),
	})

	worker := recalc.NewWorker(recalc.WorkerOptions{
		Queue:        queue,
		Trades:       trades,
		Lots:         lots,
		Positions:    positions,
		Archive:      archive,
		Thresholds:   thresholds,
		Concurrency:  cfg.Recalc.Concurrency,
		PollInterval: cfg.Recalc.PollInterval.Std(),
		Lease:        cfg.Recalc.Lease.Std(),
		RetryStep:    cfg.Recalc.RetryStep.Std(),
		RetryCap:     cfg.Recalc.RetryCap.Std(),
		Metrics:      metrics,
		Logger:       log.New(os.Stdout, "[recalc] ", log.LstdFlags|log.Lshortfile),
	})

	client := indexer.NewClient(cfg.Indexer.URL,
		indexer.WithAPIKey(cfg.Indexer.APIKey),
		indexer.WithTimeout(cfg.Indexer.Timeout.Std()),
		indexer.WithMaxRetries(cfg.Indexer.MaxRetries),
		indexer.WithPageSize(cfg.Indexer.PageSize),
		indexer.WithBatchSize(cfg.Indexer.BatchSize),
	)

	sweeper := reconcile.NewSweeper(reconcile.SweeperOptions{
		Wallets:           wallets,
		Trades:            trades,
		Upstream:          client,
		Ingestor:          coordinator,
		Deduper:           deduper,
		Interval:          cfg.Reconcile.Interval.Std(),
		Window:            cfg.Reconcile.Window.Std(),
		IdleAfter:         cfg.Reconcile.IdleAfter.Std(),
		IdleEvery:         cfg.Reconcile.IdleEvery,
		IdleWindow:        cfg.Reconcile.IdleWindow.Std(),
		Concurrency:       cfg.Reconcile.Concurrency,
		RequestsPerSecond: cfg.Reconcile.RatePerSec,
		Burst:             cfg.Reconcile.Burst,
		PageSize:          cfg.Reconcile.PageSize,
		Metrics:           metrics,
		Logger:            log.New(os.Stdout, "[reconcile] ", log.LstdFlags|log.Lshortfile),
	})

	sources, err := openSources(ctx, cfg, wallets, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, src := range sources {
			src.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	for name, src := range sources {
		pumpLogger := log.New(os.Stdout, "["+name+"] ", log.LstdFlags|log.Lshortfile)
		g.Go(func() error {
			err := ingestion.Pump(gctx, coordinator, src, pumpLogger)
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("%s source: %w", name, err)
		})
	}

	g.Go(func() error {
		return serveHTTP(gctx, cfg.Metrics, wallets, sources, started, logger)
	})

	logger.Printf("Ledger daemon up: %d feed sources, %d recalc workers, sweep every %s",
		len(sources), cfg.Recalc.Concurrency, cfg.Reconcile.Interval.Std())

	return g.Wait()
}

// openSources builds the configured feed sources keyed by name.
func openSources(ctx context.Context, cfg *config.Config, wallets storage.WalletStore, logger *log.Logger) (map[string]ingestion.Source, error) {
	sources := make(map[string]ingestion.Source)

	if cfg.Feed.NATS.URL != "" {
		src, err := ingestion.NewNATSSource(ingestion.NATSSourceOptions{
			URL:        cfg.Feed.NATS.URL,
			Subject:    cfg.Feed.NATS.Subject,
			QueueGroup: cfg.Feed.NATS.QueueGroup,
			BufferSize: cfg.Feed.NATS.BufferSize,
			Logger:     log.New(os.Stdout, "[nats] ", log.LstdFlags|log.Lshortfile),
		})
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		sources["nats"] = src
		logger.Printf("NATS feed connected: %s %s", cfg.Feed.NATS.URL, cfg.Feed.NATS.Subject)
	}

	if cfg.Feed.WS.Endpoint != "" {
		tracked, err := wallets.List(ctx)
		if err != nil {
			closeAll(sources)
			return nil, fmt.Errorf("list wallets for subscription: %w", err)
		}
		addrs := make([]string, 0, len(tracked))
		for _, w := range tracked {
			addrs = append(addrs, w.Address)
		}

		wsCfg := ingestion.DefaultWSSourceConfig()
		wsCfg.BufferSize = cfg.Feed.WS.BufferSize
		src, err := ingestion.NewWSSource(ctx, ingestion.WSSourceOptions{
			Endpoint: cfg.Feed.WS.Endpoint,
			Wallets:  addrs,
			Config:   &wsCfg,
			Logger:   log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lshortfile),
		})
		if err != nil {
			closeAll(sources)
			return nil, fmt.Errorf("connect websocket feed: %w", err)
		}
		sources["ws"] = src
		logger.Printf("WebSocket feed connected: %s (%d wallets)", cfg.Feed.WS.Endpoint, len(addrs))
	}

	return sources, nil
}

func closeAll(sources map[string]ingestion.Source) {
	for _, src := range sources {
		src.Close()
	}
}

// statusResponse is the JSON body of the /status endpoint.
type statusResponse struct {
	Status         string   `json:"status"`
	Uptime         string   `json:"uptime"`
	TrackedWallets int      `json:"tracked_wallets"`
	FeedSources    []string `json:"feed_sources"`
}

// serveHTTP runs the metrics/health/status listener until the context is
// cancelled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, cfg config.MetricsConfig, wallets storage.WalletStore, sources map[string]ingestion.Source, started time.Time, logger *log.Logger) error {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle(cfg.Path, observability.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		tracked, err := wallets.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := statusResponse{
			Status:         "running",
			Uptime:         time.Since(started).String(),
			TrackedWallets: len(tracked),
			FeedSources:    names,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP listener on %s (metrics at %s)", cfg.Addr, cfg.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	}
}
