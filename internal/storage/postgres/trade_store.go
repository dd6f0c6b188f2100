package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
//
// The seq bigserial column records insertion order; every range scan orders
// by (timestamp, seq) so replay sees trades exactly as classification did.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	id, wallet_id, tx_signature, wallet_address, token_mint, side,
	amount_token::text, amount_base::text, price_base_per_token::text,
	base_token, dex_source, slot, timestamp,
	action, position_change_percent::text, created_at
`

// Insert adds a new trade. Returns ErrDuplicateKey if the trade id or
// (wallet_id, tx_signature) already exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.ClassifiedTrade) error {
	if t == nil || t.ID == "" || t.WalletID == "" || t.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO classified_trades (
			id, wallet_id, tx_signature, wallet_address, token_mint, side,
			amount_token, amount_base, price_base_per_token,
			base_token, dex_source, slot, timestamp,
			action, position_change_percent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.WalletID, t.TxSignature, t.WalletAddress, t.TokenMint, t.Side,
		t.AmountToken.String(), t.AmountBase.String(), t.PriceBasePerToken.String(),
		string(t.BaseToken), t.DexSource, t.Slot, t.Timestamp,
		t.Action, t.PositionChangePercent.String(), t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetBySignature retrieves one trade by (wallet_id, tx_signature).
// Returns ErrNotFound if not exists.
func (s *TradeStore) GetBySignature(ctx context.Context, walletID, txSignature string) (*domain.ClassifiedTrade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM classified_trades
		WHERE wallet_id = $1 AND tx_signature = $2
	`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, walletID, txSignature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by signature: %w", err)
	}
	return t, nil
}

// ListByWallet retrieves all trades for a wallet in replay order.
func (s *TradeStore) ListByWallet(ctx context.Context, walletID string) ([]*domain.ClassifiedTrade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM classified_trades
		WHERE wallet_id = $1
		ORDER BY timestamp ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list trades by wallet: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListByWalletToken retrieves all trades for a (wallet, token) pair in
// replay order.
func (s *TradeStore) ListByWalletToken(ctx context.Context, walletID, tokenMint string) ([]*domain.ClassifiedTrade, error) {
	if tokenMint == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT ` + tradeColumns + `
		FROM classified_trades
		WHERE wallet_id = $1 AND token_mint = $2
		ORDER BY timestamp ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID, tokenMint)
	if err != nil {
		return nil, fmt.Errorf("list trades by wallet token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListSignaturesSince returns the signatures of all wallet trades with
// timestamp >= sinceMs.
func (s *TradeStore) ListSignaturesSince(ctx context.Context, walletID string, sinceMs int64) ([]string, error) {
	query := `
		SELECT tx_signature
		FROM classified_trades
		WHERE wallet_id = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("list signatures since: %w", err)
	}
	defer rows.Close()

	var sigs []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("scan signature row: %w", err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signature rows: %w", err)
	}

	return sigs, nil
}

// ListTokenMints returns the distinct token mints the wallet has traded.
func (s *TradeStore) ListTokenMints(ctx context.Context, walletID string) ([]string, error) {
	query := `
		SELECT DISTINCT token_mint
		FROM classified_trades
		WHERE wallet_id = $1
		ORDER BY token_mint ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list token mints: %w", err)
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var mint string
		if err := rows.Scan(&mint); err != nil {
			return nil, fmt.Errorf("scan token mint row: %w", err)
		}
		mints = append(mints, mint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token mint rows: %w", err)
	}

	return mints, nil
}

// UpdateClassifications overwrites action and position-change percent for the
// given trades in one transaction. Fails the entire batch if any trade is
// missing.
func (s *TradeStore) UpdateClassifications(ctx context.Context, trades []*domain.ClassifiedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE classified_trades
		SET action = $2, position_change_percent = $3
		WHERE id = $1
	`

	for _, t := range trades {
		if t == nil || t.ID == "" {
			return storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query, t.ID, t.Action, t.PositionChangePercent.String())
		if err != nil {
			return fmt.Errorf("update classification %s: %w", t.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CountByWallet returns the number of trades for a wallet.
func (s *TradeStore) CountByWallet(ctx context.Context, walletID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM classified_trades WHERE wallet_id = $1`, walletID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades by wallet: %w", err)
	}
	return n, nil
}

// scanTrade scans a single row into a ClassifiedTrade.
func scanTrade(row pgx.Row) (*domain.ClassifiedTrade, error) {
	var (
		t                            domain.ClassifiedTrade
		amountToken, amountBase      string
		price, positionChangePercent string
		baseToken                    string
	)

	err := row.Scan(
		&t.ID, &t.WalletID, &t.TxSignature, &t.WalletAddress, &t.TokenMint, &t.Side,
		&amountToken, &amountBase, &price,
		&baseToken, &t.DexSource, &t.Slot, &t.Timestamp,
		&t.Action, &positionChangePercent, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.AmountToken, err = scanDecimal(amountToken); err != nil {
		return nil, err
	}
	if t.AmountBase, err = scanDecimal(amountBase); err != nil {
		return nil, err
	}
	if t.PriceBasePerToken, err = scanDecimal(price); err != nil {
		return nil, err
	}
	if t.PositionChangePercent, err = scanDecimal(positionChangePercent); err != nil {
		return nil, err
	}
	t.BaseToken = domain.BaseToken(baseToken)

	return &t, nil
}

// scanTrades scans multiple rows into a slice of ClassifiedTrade.
func scanTrades(rows pgx.Rows) ([]*domain.ClassifiedTrade, error) {
	var trades []*domain.ClassifiedTrade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
