package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
//
// An insertion counter stands in for the bigserial column of the Postgres
// implementation so that equal-timestamp trades keep arrival order.
type TradeStore struct {
	mu    sync.RWMutex
	data  map[string]*tradeRow // keyed by trade id
	bySig map[string]string    // wallet_id|tx_signature -> trade id
	seq   int64
}

type tradeRow struct {
	trade *domain.ClassifiedTrade
	seq   int64
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data:  make(map[string]*tradeRow),
		bySig: make(map[string]string),
	}
}

func sigKey(walletID, txSignature string) string {
	return walletID + "|" + txSignature
}

// Insert adds a new trade. Returns ErrDuplicateKey if the trade id or
// (wallet_id, tx_signature) already exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.ClassifiedTrade) error {
	if t == nil || t.ID == "" || t.WalletID == "" || t.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.bySig[sigKey(t.WalletID, t.TxSignature)]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.seq++
	s.data[t.ID] = &tradeRow{trade: &copy, seq: s.seq}
	s.bySig[sigKey(t.WalletID, t.TxSignature)] = t.ID
	return nil
}

// GetBySignature retrieves one trade by (wallet_id, tx_signature).
// Returns ErrNotFound if not exists.
func (s *TradeStore) GetBySignature(_ context.Context, walletID, txSignature string) (*domain.ClassifiedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.bySig[sigKey(walletID, txSignature)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *s.data[id].trade
	return &copy, nil
}

// ListByWallet retrieves all trades for a wallet in replay order.
func (s *TradeStore) ListByWallet(_ context.Context, walletID string) ([]*domain.ClassifiedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked(walletID, ""), nil
}

// ListByWalletToken retrieves all trades for a (wallet, token) pair in
// replay order.
func (s *TradeStore) ListByWalletToken(_ context.Context, walletID, tokenMint string) ([]*domain.ClassifiedTrade, error) {
	if tokenMint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked(walletID, tokenMint), nil
}

// listLocked collects matching rows sorted by (timestamp, insertion order).
// Caller must hold at least a read lock.
func (s *TradeStore) listLocked(walletID, tokenMint string) []*domain.ClassifiedTrade {
	var rows []*tradeRow
	for _, r := range s.data {
		if r.trade.WalletID != walletID {
			continue
		}
		if tokenMint != "" && r.trade.TokenMint != tokenMint {
			continue
		}
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].trade.Timestamp != rows[j].trade.Timestamp {
			return rows[i].trade.Timestamp < rows[j].trade.Timestamp
		}
		return rows[i].seq < rows[j].seq
	})

	result := make([]*domain.ClassifiedTrade, 0, len(rows))
	for _, r := range rows {
		copy := *r.trade
		result = append(result, &copy)
	}
	return result
}

// ListSignaturesSince returns the signatures of all wallet trades with
// timestamp >= sinceMs.
func (s *TradeStore) ListSignaturesSince(_ context.Context, walletID string, sinceMs int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sigs []string
	for _, t := range s.listLocked(walletID, "") {
		if t.Timestamp >= sinceMs {
			sigs = append(sigs, t.TxSignature)
		}
	}
	return sigs, nil
}

// ListTokenMints returns the distinct token mints the wallet has traded.
func (s *TradeStore) ListTokenMints(_ context.Context, walletID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.data {
		if r.trade.WalletID == walletID {
			seen[r.trade.TokenMint] = struct{}{}
		}
	}

	mints := make([]string, 0, len(seen))
	for m := range seen {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	return mints, nil
}

// UpdateClassifications overwrites action and position-change percent for the
// given trades. Fails the entire batch if any trade is missing.
func (s *TradeStore) UpdateClassifications(_ context.Context, trades []*domain.ClassifiedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: every target must exist
	for _, t := range trades {
		if t == nil || t.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[t.ID]; !exists {
			return storage.ErrNotFound
		}
	}

	// Second pass: apply all
	for _, t := range trades {
		row := s.data[t.ID]
		row.trade.Action = t.Action
		row.trade.PositionChangePercent = t.PositionChangePercent
	}

	return nil
}

// CountByWallet returns the number of trades for a wallet.
func (s *TradeStore) CountByWallet(_ context.Context, walletID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.data {
		if r.trade.WalletID == walletID {
			n++
		}
	}
	return n, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
