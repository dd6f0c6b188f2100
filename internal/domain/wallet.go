package domain

// Wallet is a tracked trading wallet.
// Corresponds to wallets table in PostgreSQL.
type Wallet struct {
	ID           string // UUID primary key
	Address      string // base58 Solana address, unique
	Label        string // optional operator label
	TrackedSince int64  // tracking start, Unix timestamp in milliseconds
	LastTradeAt  *int64 // newest ingested trade timestamp (ms), nullable
	CreatedAt    int64  // record creation timestamp (ms)
}

// ActiveWithin reports whether the wallet traded after the cutoff.
// Wallets with no trades yet count as active so the first sweep covers them.
func (w *Wallet) ActiveWithin(cutoffMs int64) bool {
	if w.LastTradeAt == nil {
		return true
	}
	return *w.LastTradeAt >= cutoffMs
}
