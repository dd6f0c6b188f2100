package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a new wallet. Returns ErrDuplicateKey if the id or address
// already exists.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.ID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO wallets (id, address, label, tracked_since, last_trade_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.Address, w.Label, w.TrackedSince, w.LastTradeAt, w.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID retrieves a wallet by id. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	query := `
		SELECT id, address, label, tracked_since, last_trade_at, created_at
		FROM wallets
		WHERE id = $1
	`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByAddress retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	query := `
		SELECT id, address, label, tracked_since, last_trade_at, created_at
		FROM wallets
		WHERE address = $1
	`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by address: %w", err)
	}
	return w, nil
}

// GetOrCreate returns the wallet with the given address, registering it first
// when unseen. ON CONFLICT DO NOTHING covers concurrent registration; the
// follow-up select always sees the winner.
func (s *WalletStore) GetOrCreate(ctx context.Context, address string) (*domain.Wallet, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	now := time.Now().UnixMilli()
	insert := `
		INSERT INTO wallets (id, address, label, tracked_since, last_trade_at, created_at)
		VALUES ($1, $2, '', $3, NULL, $3)
		ON CONFLICT (address) DO NOTHING
	`

	if _, err := s.pool.Exec(ctx, insert, uuid.NewString(), address, now); err != nil {
		return nil, fmt.Errorf("register wallet: %w", err)
	}

	return s.GetByAddress(ctx, address)
}

// List retrieves all tracked wallets ordered by creation time.
func (s *WalletStore) List(ctx context.Context) ([]*domain.Wallet, error) {
	query := `
		SELECT id, address, label, tracked_since, last_trade_at, created_at
		FROM wallets
		ORDER BY created_at ASC, address ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}

	return wallets, nil
}

// TouchLastTrade advances last_trade_at to tsMs if it is newer than the
// stored value. Returns ErrNotFound if the wallet does not exist.
func (s *WalletStore) TouchLastTrade(ctx context.Context, id string, tsMs int64) error {
	query := `
		UPDATE wallets
		SET last_trade_at = $2
		WHERE id = $1 AND (last_trade_at IS NULL OR last_trade_at < $2)
	`

	tag, err := s.pool.Exec(ctx, query, id, tsMs)
	if err != nil {
		return fmt.Errorf("touch wallet last trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already newer; distinguish for the caller
		exists := `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`
		var ok bool
		if err := s.pool.QueryRow(ctx, exists, id).Scan(&ok); err != nil {
			return fmt.Errorf("check wallet exists: %w", err)
		}
		if !ok {
			return storage.ErrNotFound
		}
	}
	return nil
}

// scanWallet scans a single row into a Wallet.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.Address, &w.Label, &w.TrackedSince, &w.LastTradeAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
