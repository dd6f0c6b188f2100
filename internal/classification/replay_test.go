package classification

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

func tradeFixture(side, amount string, tsMs int64) *domain.ClassifiedTrade {
	amt := decimal.RequireFromString(amount)
	return &domain.ClassifiedTrade{
		ID:       fmt.Sprintf("id-%s-%s-%d", side, amount, tsMs),
		WalletID: "wallet-1",
		NormalizedSwap: domain.NormalizedSwap{
			TxSignature:       fmt.Sprintf("sig-%s-%s-%d", side, amount, tsMs),
			WalletAddress:     "wallet-addr",
			TokenMint:         "mint-1",
			Side:              side,
			AmountToken:       amt,
			AmountBase:        amt.Mul(decimal.RequireFromString("0.01")),
			PriceBasePerToken: decimal.RequireFromString("0.01"),
			BaseToken:         domain.BaseSOL,
			Timestamp:         tsMs,
		},
	}
}

func TestReplay_BalanceConservation(t *testing.T) {
	trades := []*domain.ClassifiedTrade{
		tradeFixture(domain.SideBuy, "100", 1000),
		tradeFixture(domain.SideBuy, "50", 2000),
		tradeFixture(domain.SideSell, "30", 3000),
		tradeFixture(domain.SideSell, "200", 4000), // oversell clamps at zero
		tradeFixture(domain.SideBuy, "25", 5000),
	}

	balance, err := Replay(trades, DefaultThresholds())
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	// 100 + 50 - 30 = 120, oversell clamps to 0, then +25.
	if !balance.Equal(decimal.NewFromInt(25)) {
		t.Errorf("final balance = %s, want 25", balance)
	}
}

func TestReclassify_ActionTieBreak(t *testing.T) {
	// Balance returns to zero between the buys, so the third trade is a
	// fresh buy even though all three share a timestamp.
	trades := []*domain.ClassifiedTrade{
		tradeFixture(domain.SideBuy, "10", 1000),
		tradeFixture(domain.SideSell, "10", 1000),
		tradeFixture(domain.SideBuy, "10", 1000),
	}

	out, err := Reclassify(trades, DefaultThresholds())
	if err != nil {
		t.Fatalf("Reclassify() error = %v", err)
	}

	want := []string{domain.ActionBuy, domain.ActionSell, domain.ActionBuy}
	for i, tr := range out {
		if tr.Action != want[i] {
			t.Errorf("trade %d action = %s, want %s", i, tr.Action, want[i])
		}
	}
}

func TestReclassify_SameDirectionSequence(t *testing.T) {
	trades := []*domain.ClassifiedTrade{
		tradeFixture(domain.SideBuy, "10", 1000),
		tradeFixture(domain.SideBuy, "5", 2000),
		tradeFixture(domain.SideSell, "3", 3000),
		tradeFixture(domain.SideSell, "12", 4000),
	}

	out, err := Reclassify(trades, DefaultThresholds())
	if err != nil {
		t.Fatalf("Reclassify() error = %v", err)
	}

	want := []string{domain.ActionBuy, domain.ActionAdd, domain.ActionRemove, domain.ActionSell}
	for i, tr := range out {
		if tr.Action != want[i] {
			t.Errorf("trade %d action = %s, want %s", i, tr.Action, want[i])
		}
	}
}

func TestReclassify_Deterministic(t *testing.T) {
	trades := []*domain.ClassifiedTrade{
		tradeFixture(domain.SideBuy, "33.333333", 1000),
		tradeFixture(domain.SideBuy, "66.666667", 2000),
		tradeFixture(domain.SideSell, "99.999999", 3000),
		tradeFixture(domain.SideBuy, "0.000123", 4000),
	}

	first, err := Reclassify(trades, DefaultThresholds())
	if err != nil {
		t.Fatalf("Reclassify() error = %v", err)
	}
	second, err := Reclassify(trades, DefaultThresholds())
	if err != nil {
		t.Fatalf("Reclassify() second run error = %v", err)
	}

	for i := range first {
		if first[i].Action != second[i].Action {
			t.Errorf("trade %d action diverged: %s vs %s", i, first[i].Action, second[i].Action)
		}
		if !first[i].PositionChangePercent.Equal(second[i].PositionChangePercent) {
			t.Errorf("trade %d pct diverged: %s vs %s", i, first[i].PositionChangePercent, second[i].PositionChangePercent)
		}
	}
}

func TestReclassify_DoesNotMutateInput(t *testing.T) {
	trade := tradeFixture(domain.SideBuy, "10", 1000)
	trade.Action = "stale"

	if _, err := Reclassify([]*domain.ClassifiedTrade{trade}, DefaultThresholds()); err != nil {
		t.Fatalf("Reclassify() error = %v", err)
	}

	if trade.Action != "stale" {
		t.Errorf("input mutated: action = %s", trade.Action)
	}
}

func TestBalanceBefore_CutsAtTimestamp(t *testing.T) {
	trades := []*domain.ClassifiedTrade{
		tradeFixture(domain.SideBuy, "100", 1000),
		tradeFixture(domain.SideSell, "40", 2000),
		tradeFixture(domain.SideBuy, "7", 3000),
	}

	balance, err := BalanceBefore(trades, 2500, DefaultThresholds())
	if err != nil {
		t.Fatalf("BalanceBefore() error = %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("balance at cutoff = %s, want 60", balance)
	}

	// Equal timestamps stay in the prefix: persisted trades arrived first.
	balance, err = BalanceBefore(trades, 2000, DefaultThresholds())
	if err != nil {
		t.Fatalf("BalanceBefore() error = %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("balance at tie cutoff = %s, want 60", balance)
	}

	balance, err = BalanceBefore(trades, 500, DefaultThresholds())
	if err != nil {
		t.Fatalf("BalanceBefore() error = %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("balance before history = %s, want 0", balance)
	}
}

func TestSortTrades_StableOnTies(t *testing.T) {
	a := tradeFixture(domain.SideBuy, "1", 2000)
	b := tradeFixture(domain.SideSell, "1", 1000)
	c := tradeFixture(domain.SideBuy, "2", 2000)

	trades := []*domain.ClassifiedTrade{a, b, c}
	SortTrades(trades)

	if trades[0] != b || trades[1] != a || trades[2] != c {
		t.Errorf("unexpected order after sort: %s, %s, %s",
			trades[0].TxSignature, trades[1].TxSignature, trades[2].TxSignature)
	}
}
