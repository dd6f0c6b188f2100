package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// LotStore implements storage.LotStore using PostgreSQL.
type LotStore struct {
	pool *Pool
}

// NewLotStore creates a new LotStore.
func NewLotStore(pool *Pool) *LotStore {
	return &LotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LotStore = (*LotStore)(nil)

const closedLotColumns = `
	id, wallet_id, token_mint, sequence,
	entry_timestamp, entry_signature, exit_timestamp, exit_signature,
	size_tokens::text, cost_basis_base::text, proceeds_base::text,
	realized_pnl_base::text, realized_pnl_percent::text,
	is_pre_history, base_token, created_at
`

const openLotColumns = `
	id, wallet_id, token_mint, sequence,
	entry_timestamp, entry_signature,
	size_tokens::text, price_base_per_token::text, cost_basis_base::text,
	base_token, created_at
`

// ReplaceForWallet atomically deletes the wallet's lots and inserts the new
// set. A failed transaction leaves the previous set in place. Lots with a
// zero CreatedAt are stamped with the current time.
func (s *LotStore) ReplaceForWallet(ctx context.Context, walletID string, closed []*domain.ClosedLot, open []*domain.OpenLot) error {
	if walletID == "" {
		return storage.ErrInvalidInput
	}
	for _, l := range closed {
		if l == nil || l.ID == "" || l.WalletID != walletID {
			return storage.ErrInvalidInput
		}
	}
	for _, l := range open {
		if l == nil || l.ID == "" || l.WalletID != walletID {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM closed_lots WHERE wallet_id = $1`, walletID); err != nil {
		return fmt.Errorf("delete closed lots: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM open_lots WHERE wallet_id = $1`, walletID); err != nil {
		return fmt.Errorf("delete open lots: %w", err)
	}

	now := time.Now().UnixMilli()

	insertClosed := `
		INSERT INTO closed_lots (
			id, wallet_id, token_mint, sequence,
			entry_timestamp, entry_signature, exit_timestamp, exit_signature,
			size_tokens, cost_basis_base, proceeds_base,
			realized_pnl_base, realized_pnl_percent,
			is_pre_history, base_token, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13,
			$14, $15, $16
		)
	`
	for _, l := range closed {
		createdAt := l.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		_, err := tx.Exec(ctx, insertClosed,
			l.ID, l.WalletID, l.TokenMint, l.Sequence,
			l.EntryTimestamp, l.EntrySignature, l.ExitTimestamp, l.ExitSignature,
			l.SizeTokens.String(), nullDecimalString(l.CostBasisBase), l.ProceedsBase.String(),
			nullDecimalString(l.RealizedPnlBase), nullDecimalString(l.RealizedPnlPercent),
			l.IsPreHistory, string(l.BaseToken), createdAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert closed lot: %w", err)
		}
	}

	insertOpen := `
		INSERT INTO open_lots (
			id, wallet_id, token_mint, sequence,
			entry_timestamp, entry_signature,
			size_tokens, price_base_per_token, cost_basis_base,
			base_token, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9,
			$10, $11
		)
	`
	for _, l := range open {
		createdAt := l.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		_, err := tx.Exec(ctx, insertOpen,
			l.ID, l.WalletID, l.TokenMint, l.Sequence,
			l.EntryTimestamp, l.EntrySignature,
			l.SizeTokens.String(), l.PriceBasePerToken.String(), l.CostBasisBase.String(),
			string(l.BaseToken), createdAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert open lot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListClosedByWallet retrieves closed lots ordered by (exit timestamp, sequence).
func (s *LotStore) ListClosedByWallet(ctx context.Context, walletID string) ([]*domain.ClosedLot, error) {
	query := `SELECT ` + closedLotColumns + `
		FROM closed_lots
		WHERE wallet_id = $1
		ORDER BY exit_timestamp ASC, sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list closed lots by wallet: %w", err)
	}
	defer rows.Close()

	return scanClosedLots(rows)
}

// ListClosedByWalletToken retrieves closed lots for one token, same order.
func (s *LotStore) ListClosedByWalletToken(ctx context.Context, walletID, tokenMint string) ([]*domain.ClosedLot, error) {
	if tokenMint == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT ` + closedLotColumns + `
		FROM closed_lots
		WHERE wallet_id = $1 AND token_mint = $2
		ORDER BY exit_timestamp ASC, sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID, tokenMint)
	if err != nil {
		return nil, fmt.Errorf("list closed lots by wallet token: %w", err)
	}
	defer rows.Close()

	return scanClosedLots(rows)
}

// ListOpenByWallet retrieves open lots ordered by (token, sequence).
func (s *LotStore) ListOpenByWallet(ctx context.Context, walletID string) ([]*domain.OpenLot, error) {
	query := `SELECT ` + openLotColumns + `
		FROM open_lots
		WHERE wallet_id = $1
		ORDER BY token_mint ASC, sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list open lots by wallet: %w", err)
	}
	defer rows.Close()

	return scanOpenLots(rows)
}

// ListOpenByWalletToken retrieves open lots for one token in FIFO order.
func (s *LotStore) ListOpenByWalletToken(ctx context.Context, walletID, tokenMint string) ([]*domain.OpenLot, error) {
	if tokenMint == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT ` + openLotColumns + `
		FROM open_lots
		WHERE wallet_id = $1 AND token_mint = $2
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID, tokenMint)
	if err != nil {
		return nil, fmt.Errorf("list open lots by wallet token: %w", err)
	}
	defer rows.Close()

	return scanOpenLots(rows)
}

// scanClosedLots scans rows into closed lots.
func scanClosedLots(rows pgx.Rows) ([]*domain.ClosedLot, error) {
	var lots []*domain.ClosedLot

	for rows.Next() {
		var (
			l                         domain.ClosedLot
			sizeTokens, proceedsBase  string
			costBasis, pnlBase, pnlPc *string
			baseToken                 string
		)

		err := rows.Scan(
			&l.ID, &l.WalletID, &l.TokenMint, &l.Sequence,
			&l.EntryTimestamp, &l.EntrySignature, &l.ExitTimestamp, &l.ExitSignature,
			&sizeTokens, &costBasis, &proceedsBase,
			&pnlBase, &pnlPc,
			&l.IsPreHistory, &baseToken, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan closed lot row: %w", err)
		}

		if l.SizeTokens, err = scanDecimal(sizeTokens); err != nil {
			return nil, err
		}
		if l.ProceedsBase, err = scanDecimal(proceedsBase); err != nil {
			return nil, err
		}
		if l.CostBasisBase, err = scanNullDecimal(costBasis); err != nil {
			return nil, err
		}
		if l.RealizedPnlBase, err = scanNullDecimal(pnlBase); err != nil {
			return nil, err
		}
		if l.RealizedPnlPercent, err = scanNullDecimal(pnlPc); err != nil {
			return nil, err
		}
		l.BaseToken = domain.BaseToken(baseToken)

		lots = append(lots, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed lot rows: %w", err)
	}

	return lots, nil
}

// scanOpenLots scans rows into open lots.
func scanOpenLots(rows pgx.Rows) ([]*domain.OpenLot, error) {
	var lots []*domain.OpenLot

	for rows.Next() {
		var (
			l                       domain.OpenLot
			sizeTokens, price, cost string
			baseToken               string
		)

		err := rows.Scan(
			&l.ID, &l.WalletID, &l.TokenMint, &l.Sequence,
			&l.EntryTimestamp, &l.EntrySignature,
			&sizeTokens, &price, &cost,
			&baseToken, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan open lot row: %w", err)
		}

		if l.SizeTokens, err = scanDecimal(sizeTokens); err != nil {
			return nil, err
		}
		if l.PriceBasePerToken, err = scanDecimal(price); err != nil {
			return nil, err
		}
		if l.CostBasisBase, err = scanDecimal(cost); err != nil {
			return nil, err
		}
		l.BaseToken = domain.BaseToken(baseToken)

		lots = append(lots, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open lot rows: %w", err)
	}

	return lots, nil
}
