package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/estepeen/tradooor-ledger/internal/stats"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// Generator produces wallet reports from stored data.
type Generator struct {
	wallets storage.WalletStore
	trades  storage.TradeStore
	lots    storage.LotStore
	now     func() time.Time // injectable clock for deterministic output
}

// NewGenerator creates a report generator over the given stores.
func NewGenerator(wallets storage.WalletStore, trades storage.TradeStore, lots storage.LotStore) *Generator {
	return &Generator{
		wallets: wallets,
		trades:  trades,
		lots:    lots,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for one wallet address. Returns the storage
// layer's ErrNotFound when the address is not tracked.
func (g *Generator) Generate(ctx context.Context, address string) (*Report, error) {
	wallet, err := g.wallets.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", address, err)
	}

	trades, err := g.trades.ListByWallet(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	closed, err := g.lots.ListClosedByWallet(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("load closed lots: %w", err)
	}

	open, err := g.lots.ListOpenByWallet(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("load open lots: %w", err)
	}

	return &Report{
		GeneratedAt: g.now(),
		Summary:     stats.Summarize(wallet, trades, closed, open),
	}, nil
}
