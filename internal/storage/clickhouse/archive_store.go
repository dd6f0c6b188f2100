package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// ArchiveStore implements storage.ArchiveStore using ClickHouse.
//
// Decimal columns receive values rendered as strings; the driver parses them
// into Decimal(38,18) server-side, so no float conversion happens anywhere.
// Re-appended rows (recalculation re-runs) collapse via ReplacingMergeTree.
type ArchiveStore struct {
	conn *Conn

	maxRetries   int
	retryBackoff time.Duration
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(conn *Conn) *ArchiveStore {
	return &ArchiveStore{
		conn:         conn,
		maxRetries:   3,
		retryBackoff: 200 * time.Millisecond,
	}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

// AppendTrades writes a batch of classified trades.
func (s *ArchiveStore) AppendTrades(ctx context.Context, trades []*domain.ClassifiedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	return s.withRetry(ctx, func() error {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO trade_archive (
				id, wallet_id, wallet_address, tx_signature, token_mint,
				side, action,
				amount_token, amount_base, price_base_per_token, position_change_percent,
				base_token, dex_source, slot, timestamp_ms, created_at_ms
			)
		`)
		if err != nil {
			return fmt.Errorf("prepare trade batch: %w", err)
		}

		for _, t := range trades {
			err = batch.Append(
				t.ID, t.WalletID, t.WalletAddress, t.TxSignature, t.TokenMint,
				t.Side, t.Action,
				t.AmountToken.String(), t.AmountBase.String(),
				t.PriceBasePerToken.String(), t.PositionChangePercent.String(),
				string(t.BaseToken), t.DexSource, uint64(t.Slot), uint64(t.Timestamp), uint64(t.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("append trade to batch: %w", err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("send trade batch: %w", err)
		}
		return nil
	})
}

// AppendClosedLots writes a batch of closed lots.
func (s *ArchiveStore) AppendClosedLots(ctx context.Context, lots []*domain.ClosedLot) error {
	if len(lots) == 0 {
		return nil
	}

	return s.withRetry(ctx, func() error {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO closed_lot_archive (
				id, wallet_id, token_mint, sequence,
				entry_timestamp_ms, entry_signature, exit_timestamp_ms, exit_signature,
				size_tokens, cost_basis_base, proceeds_base,
				realized_pnl_base, realized_pnl_percent,
				is_pre_history, base_token, created_at_ms
			)
		`)
		if err != nil {
			return fmt.Errorf("prepare lot batch: %w", err)
		}

		for _, l := range lots {
			err = batch.Append(
				l.ID, l.WalletID, l.TokenMint, uint32(l.Sequence),
				uint64(l.EntryTimestamp), l.EntrySignature, uint64(l.ExitTimestamp), l.ExitSignature,
				l.SizeTokens.String(), decimalText(l.CostBasisBase), l.ProceedsBase.String(),
				decimalText(l.RealizedPnlBase), decimalText(l.RealizedPnlPercent),
				l.IsPreHistory, string(l.BaseToken), uint64(l.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("append lot to batch: %w", err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("send lot batch: %w", err)
		}
		return nil
	})
}

// withRetry runs fn with doubling backoff. ClickHouse inserts are idempotent
// here (ReplacingMergeTree keyed by id), so a retry after a half-applied
// batch is safe.
func (s *ArchiveStore) withRetry(ctx context.Context, fn func() error) error {
	backoff := s.retryBackoff

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

// decimalText renders a nullable decimal; nil maps to SQL NULL.
func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
