package domain

import (
	"github.com/shopspring/decimal"
)

// PositionState is the running token balance for one (wallet, token) pair.
// It is derived by replaying the pair's classified trades in order and is
// only ever held as a materialized cache. Replay is the source of truth;
// a cached value must never survive a retroactive correction.
type PositionState struct {
	WalletID      string          // FK to wallets
	TokenMint     string          // traded token mint
	BalanceTokens decimal.Decimal // current holdings, UI units, >= 0
	UpdatedAt     int64           // cache refresh timestamp (ms)
}
