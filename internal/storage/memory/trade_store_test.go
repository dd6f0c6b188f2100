package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

func testTrade(id, walletID, sig, mint string, ts int64) *domain.ClassifiedTrade {
	return &domain.ClassifiedTrade{
		ID:       id,
		WalletID: walletID,
		NormalizedSwap: domain.NormalizedSwap{
			TxSignature:       sig,
			WalletAddress:     "addr-" + walletID,
			TokenMint:         mint,
			Side:              domain.SideBuy,
			AmountToken:       decimal.RequireFromString("10"),
			AmountBase:        decimal.RequireFromString("1.5"),
			PriceBasePerToken: decimal.RequireFromString("0.15"),
			BaseToken:         domain.BaseSOL,
			Slot:              100,
			Timestamp:         ts,
		},
		Action:                domain.ActionBuy,
		PositionChangePercent: decimal.RequireFromString("100"),
		CreatedAt:             ts,
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := testTrade("t1", "w1", "sig1", "mintA", 1000)
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetBySignature(ctx, "w1", "sig1")
	if err != nil {
		t.Fatalf("GetBySignature failed: %v", err)
	}
	if got.ID != "t1" {
		t.Errorf("Expected id t1, got %s", got.ID)
	}
	if !got.AmountToken.Equal(trade.AmountToken) {
		t.Errorf("AmountToken mismatch: got %s", got.AmountToken)
	}
}

func TestTradeStore_DuplicateSignature(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testTrade("t1", "w1", "sig1", "mintA", 1000)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Same (wallet, signature) under a different trade id
	err := store.Insert(ctx, testTrade("t2", "w1", "sig1", "mintA", 1000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same signature for another wallet is a distinct trade
	if err := store.Insert(ctx, testTrade("t3", "w2", "sig1", "mintA", 1000)); err != nil {
		t.Errorf("Cross-wallet insert failed: %v", err)
	}
}

func TestTradeStore_GetMissing(t *testing.T) {
	store := NewTradeStore()

	_, err := store.GetBySignature(context.Background(), "w1", "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTradeStore_ReplayOrder(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	// Insert out of timestamp order, with a tie between t2 and t3
	trades := []*domain.ClassifiedTrade{
		testTrade("t3", "w1", "sig3", "mintA", 2000),
		testTrade("t1", "w1", "sig1", "mintA", 1000),
		testTrade("t2", "w1", "sig2", "mintA", 2000),
	}
	for _, tr := range trades {
		if err := store.Insert(ctx, tr); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.ListByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ListByWallet failed: %v", err)
	}

	// Timestamp ascending; the tie resolves by insertion order (t3 before t2)
	wantIDs := []string{"t1", "t3", "t2"}
	if len(result) != len(wantIDs) {
		t.Fatalf("Expected %d trades, got %d", len(wantIDs), len(result))
	}
	for i, want := range wantIDs {
		if result[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, result[i].ID)
		}
	}
}

func TestTradeStore_ListByWalletToken(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	store.Insert(ctx, testTrade("t1", "w1", "sig1", "mintA", 1000))
	store.Insert(ctx, testTrade("t2", "w1", "sig2", "mintB", 2000))
	store.Insert(ctx, testTrade("t3", "w2", "sig3", "mintA", 3000))

	result, err := store.ListByWalletToken(ctx, "w1", "mintA")
	if err != nil {
		t.Fatalf("ListByWalletToken failed: %v", err)
	}
	if len(result) != 1 || result[0].ID != "t1" {
		t.Errorf("Expected [t1], got %d trades", len(result))
	}
}

func TestTradeStore_ListSignaturesSince(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	store.Insert(ctx, testTrade("t1", "w1", "sig1", "mintA", 1000))
	store.Insert(ctx, testTrade("t2", "w1", "sig2", "mintA", 2000))
	store.Insert(ctx, testTrade("t3", "w1", "sig3", "mintA", 3000))

	sigs, err := store.ListSignaturesSince(ctx, "w1", 2000)
	if err != nil {
		t.Fatalf("ListSignaturesSince failed: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("Expected 2 signatures, got %d", len(sigs))
	}
	if sigs[0] != "sig2" || sigs[1] != "sig3" {
		t.Errorf("Expected [sig2 sig3], got %v", sigs)
	}
}

func TestTradeStore_ListTokenMints(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	store.Insert(ctx, testTrade("t1", "w1", "sig1", "mintB", 1000))
	store.Insert(ctx, testTrade("t2", "w1", "sig2", "mintA", 2000))
	store.Insert(ctx, testTrade("t3", "w1", "sig3", "mintA", 3000))

	mints, err := store.ListTokenMints(ctx, "w1")
	if err != nil {
		t.Fatalf("ListTokenMints failed: %v", err)
	}
	if len(mints) != 2 || mints[0] != "mintA" || mints[1] != "mintB" {
		t.Errorf("Expected [mintA mintB], got %v", mints)
	}
}

func TestTradeStore_UpdateClassifications(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	store.Insert(ctx, testTrade("t1", "w1", "sig1", "mintA", 1000))
	store.Insert(ctx, testTrade("t2", "w1", "sig2", "mintA", 2000))

	updated := testTrade("t2", "w1", "sig2", "mintA", 2000)
	updated.Action = domain.ActionAdd
	updated.PositionChangePercent = decimal.RequireFromString("50")

	if err := store.UpdateClassifications(ctx, []*domain.ClassifiedTrade{updated}); err != nil {
		t.Fatalf("UpdateClassifications failed: %v", err)
	}

	got, _ := store.GetBySignature(ctx, "w1", "sig2")
	if got.Action != domain.ActionAdd {
		t.Errorf("Expected action add, got %s", got.Action)
	}
	if !got.PositionChangePercent.Equal(decimal.RequireFromString("50")) {
		t.Errorf("Expected 50, got %s", got.PositionChangePercent)
	}
}

func TestTradeStore_UpdateClassificationsMissing(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	store.Insert(ctx, testTrade("t1", "w1", "sig1", "mintA", 1000))

	updates := []*domain.ClassifiedTrade{
		testTrade("t1", "w1", "sig1", "mintA", 1000),
		testTrade("ghost", "w1", "sigX", "mintA", 2000),
	}
	updates[0].Action = domain.ActionSell

	err := store.UpdateClassifications(context.Background(), updates)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// Verify no partial update
	got, _ := store.GetBySignature(ctx, "w1", "sig1")
	if got.Action != domain.ActionBuy {
		t.Errorf("Expected untouched action buy, got %s", got.Action)
	}
}

func TestTradeStore_CountByWallet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	store.Insert(ctx, testTrade("t1", "w1", "sig1", "mintA", 1000))
	store.Insert(ctx, testTrade("t2", "w1", "sig2", "mintA", 2000))
	store.Insert(ctx, testTrade("t3", "w2", "sig3", "mintA", 3000))

	n, err := store.CountByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("CountByWallet failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2, got %d", n)
	}
}
