package reporting

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
	"github.com/estepeen/tradooor-ledger/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func setupTestData(t *testing.T) (*memory.WalletStore, *memory.TradeStore, *memory.LotStore) {
	t.Helper()
	ctx := context.Background()

	wallets := memory.NewWalletStore()
	trades := memory.NewTradeStore()
	lots := memory.NewLotStore()

	wallet := &domain.Wallet{ID: "wallet-1", Address: "addr-1", Label: "whale"}
	if err := wallets.Insert(ctx, wallet); err != nil {
		t.Fatalf("Insert wallet failed: %v", err)
	}

	seed := []*domain.ClassifiedTrade{
		{
			ID:       "t1",
			WalletID: "wallet-1",
			NormalizedSwap: domain.NormalizedSwap{
				TxSignature: "sig-1",
				TokenMint:   "mint-1",
				Side:        domain.SideBuy,
				AmountToken: dec("100"),
				AmountBase:  dec("10"),
				BaseToken:   domain.BaseSOL,
				Timestamp:   1000,
			},
			Action: domain.ActionBuy,
		},
		{
			ID:       "t2",
			WalletID: "wallet-1",
			NormalizedSwap: domain.NormalizedSwap{
				TxSignature: "sig-2",
				TokenMint:   "mint-1",
				Side:        domain.SideSell,
				AmountToken: dec("60"),
				AmountBase:  dec("9"),
				BaseToken:   domain.BaseSOL,
				Timestamp:   2000,
			},
			Action: domain.ActionRemove,
		},
	}
	for _, tr := range seed {
		if err := trades.Insert(ctx, tr); err != nil {
			t.Fatalf("Insert trade failed: %v", err)
		}
	}

	closed := []*domain.ClosedLot{{
		ID:              "lot-1",
		WalletID:        "wallet-1",
		TokenMint:       "mint-1",
		Sequence:        0,
		EntryTimestamp:  1000,
		EntrySignature:  "sig-1",
		ExitTimestamp:   2000,
		ExitSignature:   "sig-2",
		SizeTokens:      dec("60"),
		CostBasisBase:   decPtr("6"),
		ProceedsBase:    dec("9"),
		RealizedPnlBase: decPtr("3"),
		BaseToken:       domain.BaseSOL,
	}}
	open := []*domain.OpenLot{{
		ID:                "open-1",
		WalletID:          "wallet-1",
		TokenMint:         "mint-1",
		Sequence:          0,
		EntryTimestamp:    1000,
		EntrySignature:    "sig-1",
		SizeTokens:        dec("40"),
		PriceBasePerToken: dec("0.1"),
		CostBasisBase:     dec("4"),
		BaseToken:         domain.BaseSOL,
	}}
	if err := lots.ReplaceForWallet(ctx, "wallet-1", closed, open); err != nil {
		t.Fatalf("ReplaceForWallet failed: %v", err)
	}

	return wallets, trades, lots
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	wallets, trades, lots := setupTestData(t)

	fixedTime := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	generator := NewGenerator(wallets, trades, lots).WithClock(func() time.Time {
		return fixedTime
	})

	report, err := generator.Generate(ctx, "addr-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !report.GeneratedAt.Equal(fixedTime) {
		t.Errorf("GeneratedAt = %v, want %v", report.GeneratedAt, fixedTime)
	}

	s := report.Summary
	if s.Address != "addr-1" || s.Label != "whale" {
		t.Errorf("wallet identity wrong: %+v", s)
	}
	if s.TotalTrades != 2 || s.Buys != 1 || s.Sells != 1 {
		t.Errorf("trade counts wrong: %+v", s)
	}
	if s.MatchedLots != 1 || s.Wins != 1 || s.OpenLots != 1 {
		t.Errorf("lot counts wrong: %+v", s)
	}
	if len(s.Bases) != 1 || !s.Bases[0].RealizedPnl.Equal(dec("3")) {
		t.Errorf("base breakdown wrong: %+v", s.Bases)
	}
}

func TestGenerateUnknownWallet(t *testing.T) {
	wallets, trades, lots := setupTestData(t)
	generator := NewGenerator(wallets, trades, lots)

	_, err := generator.Generate(context.Background(), "addr-nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteMarkdown(t *testing.T) {
	ctx := context.Background()
	wallets, trades, lots := setupTestData(t)

	fixedTime := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	generator := NewGenerator(wallets, trades, lots).WithClock(func() time.Time {
		return fixedTime
	})
	report, err := generator.Generate(ctx, "addr-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, report); err != nil {
		t.Fatalf("WriteMarkdown failed: %v", err)
	}
	md := buf.String()

	wantLines := []string{
		"# Wallet Report",
		"Generated: 2026-01-15T12:00:00Z",
		"Wallet: addr-1 (whale)",
		"## Overview",
		"| Trades | 2 (1 buys / 1 sells) |",
		"| Closed Lots | 1 (1 matched / 0 pre-history) |",
		"| Win Rate | 1.0000 |",
		"## Realized Performance",
		"| SOL | 3.0000 | 10.0000 | 9.0000 | 4.0000 |",
		"## Tokens",
		"| mint-1 | SOL | 2 | 1 | 1.0000 | 3.0000 | 10.0000 | 9.0000 | 40.0000 | 4.0000 |",
	}
	for _, want := range wantLines {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestWriteMarkdownEmptyWallet(t *testing.T) {
	ctx := context.Background()
	wallets := memory.NewWalletStore()
	if err := wallets.Insert(ctx, &domain.Wallet{ID: "wallet-2", Address: "addr-2"}); err != nil {
		t.Fatalf("Insert wallet failed: %v", err)
	}

	generator := NewGenerator(wallets, memory.NewTradeStore(), memory.NewLotStore())
	report, err := generator.Generate(ctx, "addr-2")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, report); err != nil {
		t.Fatalf("WriteMarkdown failed: %v", err)
	}
	md := buf.String()

	if !strings.Contains(md, "Wallet: addr-2\n") {
		t.Errorf("unlabeled wallet line wrong:\n%s", md)
	}
	if !strings.Contains(md, "| First Trade | - |") {
		t.Errorf("expected dash for missing first trade:\n%s", md)
	}
	if !strings.Contains(md, "No realized performance to report.") {
		t.Errorf("expected empty performance fallback:\n%s", md)
	}
	if !strings.Contains(md, "No tokens traded.") {
		t.Errorf("expected empty tokens fallback:\n%s", md)
	}
}

func TestWriteCSV(t *testing.T) {
	ctx := context.Background()
	wallets, trades, lots := setupTestData(t)

	report, err := NewGenerator(wallets, trades, lots).Generate(ctx, "addr-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, report); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "token_mint,base_token,trades,") {
		t.Errorf("header wrong: %s", lines[0])
	}
	want := "mint-1,SOL,2,1,1,1,0,1,0,1.000000,3.000000,10.000000,9.000000,40.000000,4.000000"
	if lines[1] != want {
		t.Errorf("row = %s, want %s", lines[1], want)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	ctx := context.Background()
	fixedClock := func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }

	var first string
	for run := 0; run < 5; run++ {
		wallets, trades, lots := setupTestData(t)
		report, err := NewGenerator(wallets, trades, lots).WithClock(fixedClock).Generate(ctx, "addr-1")
		if err != nil {
			t.Fatalf("Run %d: Generate failed: %v", run, err)
		}

		var buf bytes.Buffer
		if err := WriteMarkdown(&buf, report); err != nil {
			t.Fatalf("Run %d: WriteMarkdown failed: %v", run, err)
		}
		if first == "" {
			first = buf.String()
			continue
		}
		if buf.String() != first {
			t.Fatalf("Run %d: rendered output differs", run)
		}
	}
}
