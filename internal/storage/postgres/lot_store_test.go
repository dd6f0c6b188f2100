package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

func pgClosedLot(id, walletID, mint string, seq int, exitTs int64) *domain.ClosedLot {
	return &domain.ClosedLot{
		ID:             id,
		WalletID:       walletID,
		TokenMint:      mint,
		Sequence:       seq,
		EntryTimestamp: exitTs - 1000,
		EntrySignature: "entry-" + id,
		ExitTimestamp:  exitTs,
		ExitSignature:  "exit-" + id,
		SizeTokens:     decimal.RequireFromString("100"),
		CostBasisBase:  ptr(decimal.RequireFromString("10")),
		ProceedsBase:   decimal.RequireFromString("15"),

		RealizedPnlBase:    ptr(decimal.RequireFromString("5")),
		RealizedPnlPercent: ptr(decimal.RequireFromString("50")),
		BaseToken:          domain.BaseSOL,
	}
}

func pgOpenLot(id, walletID, mint string, seq int) *domain.OpenLot {
	return &domain.OpenLot{
		ID:                id,
		WalletID:          walletID,
		TokenMint:         mint,
		Sequence:          seq,
		EntryTimestamp:    1000,
		EntrySignature:    "entry-" + id,
		SizeTokens:        decimal.RequireFromString("50"),
		PriceBasePerToken: decimal.RequireFromString("0.1"),
		CostBasisBase:     decimal.RequireFromString("5"),
		BaseToken:         domain.BaseSOL,
	}
}

func TestLotStore_ReplaceAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	insertTestWallet(t, pool, "w1", "addr-w1")
	store := NewLotStore(pool)
	ctx := context.Background()

	closed := []*domain.ClosedLot{
		pgClosedLot("c2", "w1", "mintA", 1, 3000),
		pgClosedLot("c1", "w1", "mintA", 0, 2000),
	}
	open := []*domain.OpenLot{pgOpenLot("o1", "w1", "mintA", 0)}

	require.NoError(t, store.ReplaceForWallet(ctx, "w1", closed, open))

	gotClosed, err := store.ListClosedByWallet(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, gotClosed, 2)

	// Ordered by exit timestamp
	assert.Equal(t, "c1", gotClosed[0].ID)
	assert.Equal(t, "c2", gotClosed[1].ID)
	assert.NotZero(t, gotClosed[0].CreatedAt)

	require.NotNil(t, gotClosed[0].RealizedPnlBase)
	assert.True(t, gotClosed[0].RealizedPnlBase.Equal(decimal.RequireFromString("5")),
		"pnl mismatch: %s", gotClosed[0].RealizedPnlBase)

	gotOpen, err := store.ListOpenByWallet(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, gotOpen, 1)
	assert.Equal(t, "o1", gotOpen[0].ID)
	assert.True(t, gotOpen[0].CostBasisBase.Equal(decimal.RequireFromString("5")))
}

func TestLotStore_ReplaceSupersedes(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	insertTestWallet(t, pool, "w1", "addr-w1")
	store := NewLotStore(pool)
	ctx := context.Background()

	require.NoError(t, store.ReplaceForWallet(ctx, "w1",
		[]*domain.ClosedLot{pgClosedLot("c1", "w1", "mintA", 0, 2000)},
		[]*domain.OpenLot{pgOpenLot("o1", "w1", "mintA", 0)}))

	// The next matcher run replaces everything
	require.NoError(t, store.ReplaceForWallet(ctx, "w1",
		[]*domain.ClosedLot{
			pgClosedLot("c2", "w1", "mintA", 0, 2000),
			pgClosedLot("c3", "w1", "mintA", 1, 2500),
		},
		nil))

	gotClosed, err := store.ListClosedByWallet(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, gotClosed, 2)
	for _, l := range gotClosed {
		assert.NotEqual(t, "c1", l.ID, "superseded lot still present")
	}

	gotOpen, err := store.ListOpenByWallet(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, gotOpen)
}

func TestLotStore_PreHistoryNullsRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	insertTestWallet(t, pool, "w1", "addr-w1")
	store := NewLotStore(pool)
	ctx := context.Background()

	pre := &domain.ClosedLot{
		ID:            "pre1",
		WalletID:      "w1",
		TokenMint:     "mintA",
		Sequence:      0,
		ExitTimestamp: 2000,
		ExitSignature: "exit-pre1",
		SizeTokens:    decimal.RequireFromString("60"),
		ProceedsBase:  decimal.RequireFromString("120"),
		IsPreHistory:  true,
		BaseToken:     domain.BaseSOL,
	}

	require.NoError(t, store.ReplaceForWallet(ctx, "w1", []*domain.ClosedLot{pre}, nil))

	got, err := store.ListClosedByWallet(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, got[0].IsPreHistory)
	assert.Nil(t, got[0].CostBasisBase)
	assert.Nil(t, got[0].RealizedPnlBase)
	assert.Nil(t, got[0].RealizedPnlPercent)
	assert.Empty(t, got[0].EntrySignature)
	assert.Zero(t, got[0].EntryTimestamp)
	assert.True(t, got[0].ProceedsBase.Equal(decimal.RequireFromString("120")))
}

func TestLotStore_WalletMismatchRejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	insertTestWallet(t, pool, "w1", "addr-w1")
	store := NewLotStore(pool)

	err := store.ReplaceForWallet(context.Background(), "w1",
		[]*domain.ClosedLot{pgClosedLot("c1", "w2", "mintA", 0, 2000)}, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestLotStore_TokenFilter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	insertTestWallet(t, pool, "w1", "addr-w1")
	store := NewLotStore(pool)
	ctx := context.Background()

	require.NoError(t, store.ReplaceForWallet(ctx, "w1",
		[]*domain.ClosedLot{
			pgClosedLot("c1", "w1", "mintA", 0, 2000),
			pgClosedLot("c2", "w1", "mintB", 1, 3000),
		},
		[]*domain.OpenLot{
			pgOpenLot("o1", "w1", "mintA", 0),
			pgOpenLot("o2", "w1", "mintB", 0),
		}))

	gotClosed, err := store.ListClosedByWalletToken(ctx, "w1", "mintB")
	require.NoError(t, err)
	require.Len(t, gotClosed, 1)
	assert.Equal(t, "c2", gotClosed[0].ID)

	gotOpen, err := store.ListOpenByWalletToken(ctx, "w1", "mintA")
	require.NoError(t, err)
	require.Len(t, gotOpen, 1)
	assert.Equal(t, "o1", gotOpen[0].ID)
}
