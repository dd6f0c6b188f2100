package domain

import (
	"github.com/shopspring/decimal"
)

// ClosedLot is one FIFO-matched slice of an exit trade against an entry lot.
// Corresponds to closed_lots table in PostgreSQL.
//
// The lot matcher regenerates the full set for a wallet on every run; rows
// are superseded wholesale (delete-then-insert), never patched.
type ClosedLot struct {
	ID        string // deterministic hash of wallet|mint|sequence|exit signature
	WalletID  string // FK to wallets
	TokenMint string // traded token mint
	Sequence  int    // emission order within the matcher run

	// Entry side. Zero/empty when the entry predates tracking.
	EntryTimestamp int64  // Unix timestamp in milliseconds
	EntrySignature string // entry trade signature

	// Exit side
	ExitTimestamp int64  // Unix timestamp in milliseconds
	ExitSignature string // exit trade signature

	SizeTokens    decimal.Decimal  // consumed slice size, UI units
	CostBasisBase *decimal.Decimal // slice entry cost; nil when pre-history
	ProceedsBase  decimal.Decimal  // slice exit proceeds

	// Realized P&L. RealizedPnlBase is nil when the entry is pre-history;
	// RealizedPnlPercent additionally when the cost basis is zero. Nil
	// values stay out of aggregate sums but keep their count/volume weight.
	RealizedPnlBase    *decimal.Decimal
	RealizedPnlPercent *decimal.Decimal

	IsPreHistory bool      // entry predates the wallet's tracking start
	BaseToken    BaseToken // quote asset of both legs
	CreatedAt    int64     // record creation timestamp (ms)
}

// OpenLot is an entry lot (or remainder of one) not yet consumed by an exit.
// Corresponds to open_lots table in PostgreSQL; superseded together with the
// wallet's closed lots on every matcher run.
type OpenLot struct {
	ID                string          // deterministic hash of wallet|mint|sequence|entry signature
	WalletID          string          // FK to wallets
	TokenMint         string          // traded token mint
	Sequence          int             // FIFO order within the matcher run
	EntryTimestamp    int64           // Unix timestamp in milliseconds
	EntrySignature    string          // entry trade signature
	SizeTokens        decimal.Decimal // remaining size, UI units
	PriceBasePerToken decimal.Decimal // entry price
	CostBasisBase     decimal.Decimal // remaining size * entry price
	BaseToken         BaseToken       // quote asset
	CreatedAt         int64           // record creation timestamp (ms)
}
