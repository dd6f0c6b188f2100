package domain

import (
	"github.com/shopspring/decimal"
)

// ClassifiedTrade is a normalized swap with its position action attached.
// Corresponds to classified_trades table in PostgreSQL.
//
// One record per (wallet, txSignature); the ingestion coordinator is the
// sole writer. Action and PositionChangePercent depend on every prior trade
// for the (wallet, token) pair, so records are immutable except through a
// full wallet-level reclassification pass.
type ClassifiedTrade struct {
	ID       string // deterministic hash of wallet|mint|signature
	WalletID string // FK to wallets

	NormalizedSwap

	Action                string          // "buy" | "add" | "sell" | "remove"
	PositionChangePercent decimal.Decimal // in [-100, 100]
	CreatedAt             int64           // record creation timestamp (ms)
}

// Position action constants
const (
	ActionBuy    = "buy"    // opened a position from zero
	ActionAdd    = "add"    // increased an existing position
	ActionSell   = "sell"   // closed the position to zero
	ActionRemove = "remove" // decreased an existing position
)

// IsEntry reports whether the trade adds tokens to the position.
func (t *ClassifiedTrade) IsEntry() bool {
	return t.Side == SideBuy
}

// IsExit reports whether the trade removes tokens from the position.
func (t *ClassifiedTrade) IsExit() bool {
	return t.Side == SideSell
}
