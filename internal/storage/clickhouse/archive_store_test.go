package clickhouse

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

func archiveTestTrade(id, sig string, ts int64) *domain.ClassifiedTrade {
	return &domain.ClassifiedTrade{
		ID:       id,
		WalletID: "w1",
		NormalizedSwap: domain.NormalizedSwap{
			TxSignature:       sig,
			WalletAddress:     "addr1",
			TokenMint:         "mintA",
			Side:              domain.SideBuy,
			AmountToken:       decimal.RequireFromString("12.5"),
			AmountBase:        decimal.RequireFromString("2.5"),
			PriceBasePerToken: decimal.RequireFromString("0.2"),
			BaseToken:         domain.BaseSOL,
			DexSource:         "RAYDIUM",
			Slot:              500,
			Timestamp:         ts,
		},
		Action:                domain.ActionBuy,
		PositionChangePercent: decimal.RequireFromString("100"),
		CreatedAt:             ts,
	}
}

func TestArchiveStore_AppendTrades(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewArchiveStore(conn)
	ctx := context.Background()

	trades := []*domain.ClassifiedTrade{
		archiveTestTrade("t1", "sig1", 1000),
		archiveTestTrade("t2", "sig2", 2000),
	}
	require.NoError(t, store.AppendTrades(ctx, trades))

	var count uint64
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT count(*) FROM trade_archive`).Scan(&count))
	require.Equal(t, uint64(2), count)

	var amount string
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT toString(amount_token) FROM trade_archive WHERE id = ?`, "t1").Scan(&amount))
	require.True(t, decimal.RequireFromString(amount).Equal(decimal.RequireFromString("12.5")),
		"amount_token mismatch: %s", amount)
}

func TestArchiveStore_ReappendCollapses(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewArchiveStore(conn)
	ctx := context.Background()

	first := archiveTestTrade("t1", "sig1", 1000)
	require.NoError(t, store.AppendTrades(ctx, []*domain.ClassifiedTrade{first}))

	// Recalculation re-appends the same id with a newer created_at
	second := archiveTestTrade("t1", "sig1", 1000)
	second.Action = domain.ActionAdd
	second.CreatedAt = 2000
	require.NoError(t, store.AppendTrades(ctx, []*domain.ClassifiedTrade{second}))

	var count uint64
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT count(*) FROM trade_archive FINAL`).Scan(&count))
	require.Equal(t, uint64(1), count)

	var action string
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT action FROM trade_archive FINAL WHERE id = ?`, "t1").Scan(&action))
	require.Equal(t, domain.ActionAdd, action)
}

func TestArchiveStore_AppendClosedLots(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewArchiveStore(conn)
	ctx := context.Background()

	cost := decimal.RequireFromString("100")
	pnl := decimal.RequireFromString("20")
	pct := decimal.RequireFromString("20")

	matched := &domain.ClosedLot{
		ID:             "l1",
		WalletID:       "w1",
		TokenMint:      "mintA",
		Sequence:       0,
		EntryTimestamp: 1000,
		EntrySignature: "sig-entry",
		ExitTimestamp:  2000,
		ExitSignature:  "sig-exit",
		SizeTokens:     decimal.RequireFromString("100"),
		CostBasisBase:  &cost,
		ProceedsBase:   decimal.RequireFromString("120"),

		RealizedPnlBase:    &pnl,
		RealizedPnlPercent: &pct,
		BaseToken:          domain.BaseSOL,
		CreatedAt:          2000,
	}
	preHistory := &domain.ClosedLot{
		ID:            "l2",
		WalletID:      "w1",
		TokenMint:     "mintA",
		Sequence:      1,
		ExitTimestamp: 2000,
		ExitSignature: "sig-exit",
		SizeTokens:    decimal.RequireFromString("40"),
		ProceedsBase:  decimal.RequireFromString("48"),
		IsPreHistory:  true,
		BaseToken:     domain.BaseSOL,
		CreatedAt:     2000,
	}

	require.NoError(t, store.AppendClosedLots(ctx, []*domain.ClosedLot{matched, preHistory}))

	var count uint64
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT count(*) FROM closed_lot_archive`).Scan(&count))
	require.Equal(t, uint64(2), count)

	// Pre-history lots carry NULL PnL fields
	var nullPnl uint64
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT count(*) FROM closed_lot_archive
		 WHERE is_pre_history AND isNull(realized_pnl_percent) AND isNull(cost_basis_base)`).Scan(&nullPnl))
	require.Equal(t, uint64(1), nullPnl)

	var pnlText *string
	require.NoError(t, conn.QueryRow(ctx,
		`SELECT toString(realized_pnl_base) FROM closed_lot_archive WHERE id = ?`, "l1").Scan(&pnlText))
	require.NotNil(t, pnlText)
	require.True(t, decimal.RequireFromString(*pnlText).Equal(pnl), "realized_pnl_base mismatch: %s", *pnlText)
}

func TestArchiveStore_EmptyBatchNoop(t *testing.T) {
	store := NewArchiveStore(nil)

	require.NoError(t, store.AppendTrades(context.Background(), nil))
	require.NoError(t, store.AppendClosedLots(context.Background(), nil))
}
