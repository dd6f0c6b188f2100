package storage

import (
	"context"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// TradeStore provides access to classified_trades storage.
//
// Range scans return trades ordered by (timestamp, insertion order): the
// replay order. Equal timestamps keep arrival order, which is what makes
// classification tie-breaks reproducible.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the trade id or
	// (wallet_id, tx_signature) already exists.
	Insert(ctx context.Context, t *domain.ClassifiedTrade) error

	// GetBySignature retrieves one trade by (wallet_id, tx_signature).
	// Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, walletID, txSignature string) (*domain.ClassifiedTrade, error)

	// ListByWallet retrieves all trades for a wallet in replay order.
	ListByWallet(ctx context.Context, walletID string) ([]*domain.ClassifiedTrade, error)

	// ListByWalletToken retrieves all trades for a (wallet, token) pair in
	// replay order.
	ListByWalletToken(ctx context.Context, walletID, tokenMint string) ([]*domain.ClassifiedTrade, error)

	// ListSignaturesSince returns the signatures of all wallet trades with
	// timestamp >= sinceMs. Used by the reconciliation diff.
	ListSignaturesSince(ctx context.Context, walletID string, sinceMs int64) ([]string, error)

	// ListTokenMints returns the distinct token mints the wallet has traded.
	ListTokenMints(ctx context.Context, walletID string) ([]string, error)

	// UpdateClassifications overwrites action and position-change percent
	// for the given trades. Only the wallet-level reclassification pass may
	// call it; single-trade patching is invalid by construction.
	UpdateClassifications(ctx context.Context, trades []*domain.ClassifiedTrade) error

	// CountByWallet returns the number of trades for a wallet.
	CountByWallet(ctx context.Context, walletID string) (int64, error)
}

// LotStore provides access to closed_lots and open_lots storage.
//
// The lot matcher re-runs wholesale, so the only write is an atomic
// replacement of a wallet's full lot set.
type LotStore interface {
	// ReplaceForWallet atomically deletes the wallet's lots and inserts the
	// new set. A failure leaves the previous set in place.
	ReplaceForWallet(ctx context.Context, walletID string, closed []*domain.ClosedLot, open []*domain.OpenLot) error

	// ListClosedByWallet retrieves closed lots ordered by (exit timestamp,
	// sequence).
	ListClosedByWallet(ctx context.Context, walletID string) ([]*domain.ClosedLot, error)

	// ListClosedByWalletToken retrieves closed lots for one token, same order.
	ListClosedByWalletToken(ctx context.Context, walletID, tokenMint string) ([]*domain.ClosedLot, error)

	// ListOpenByWallet retrieves open lots ordered by (token, sequence).
	ListOpenByWallet(ctx context.Context, walletID string) ([]*domain.OpenLot, error)

	// ListOpenByWalletToken retrieves open lots for one token in FIFO order.
	ListOpenByWalletToken(ctx context.Context, walletID, tokenMint string) ([]*domain.OpenLot, error)
}

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Insert adds a new wallet. Returns ErrDuplicateKey if the id or
	// address already exists.
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByID retrieves a wallet by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)

	// GetByAddress retrieves a wallet by address. Returns ErrNotFound if
	// not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)

	// GetOrCreate returns the wallet with the given address, registering it
	// first when unseen. Safe under concurrent registration.
	GetOrCreate(ctx context.Context, address string) (*domain.Wallet, error)

	// List retrieves all tracked wallets ordered by creation time.
	List(ctx context.Context) ([]*domain.Wallet, error)

	// TouchLastTrade advances last_trade_at to tsMs if it is newer than the
	// stored value.
	TouchLastTrade(ctx context.Context, id string, tsMs int64) error
}

// ArchiveStore mirrors persisted trades and closed lots into the analytics
// store. Appends are best-effort and idempotent per id; the archive never
// feeds back into classification.
type ArchiveStore interface {
	// AppendTrades writes a batch of classified trades.
	AppendTrades(ctx context.Context, trades []*domain.ClassifiedTrade) error

	// AppendClosedLots writes a batch of closed lots.
	AppendClosedLots(ctx context.Context, lots []*domain.ClosedLot) error
}

// PositionCache holds derived position state per (wallet, token).
//
// The cache is never authoritative: replaying the pair's trades is the
// correctness reference, and any retroactive correction simply overwrites
// the cached value on the next recalculation.
type PositionCache interface {
	// Get returns the cached state. Returns ErrNotFound when the pair has
	// never been cached.
	Get(ctx context.Context, walletID, tokenMint string) (*domain.PositionState, error)

	// Set overwrites the cached state for the pair.
	Set(ctx context.Context, state *domain.PositionState) error

	// DeleteByWallet drops all cached pairs for a wallet.
	DeleteByWallet(ctx context.Context, walletID string) error
}
