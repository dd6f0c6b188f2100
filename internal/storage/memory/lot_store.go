package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// LotStore is an in-memory implementation of storage.LotStore.
type LotStore struct {
	mu     sync.RWMutex
	closed map[string][]*domain.ClosedLot // keyed by wallet id
	open   map[string][]*domain.OpenLot
}

// NewLotStore creates a new in-memory lot store.
func NewLotStore() *LotStore {
	return &LotStore{
		closed: make(map[string][]*domain.ClosedLot),
		open:   make(map[string][]*domain.OpenLot),
	}
}

// ReplaceForWallet atomically deletes the wallet's lots and inserts the new
// set. Lots with a zero CreatedAt are stamped with the current time; the
// matcher leaves the field unset so its output stays deterministic.
func (s *LotStore) ReplaceForWallet(_ context.Context, walletID string, closed []*domain.ClosedLot, open []*domain.OpenLot) error {
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

	now := time.Now().UnixMilli()

	newClosed := make([]*domain.ClosedLot, 0, len(closed))
	for _, l := range closed {
		copy := *l
		if copy.CreatedAt == 0 {
			copy.CreatedAt = now
		}
		newClosed = append(newClosed, &copy)
	}
	newOpen := make([]*domain.OpenLot, 0, len(open))
	for _, l := range open {
		copy := *l
		if copy.CreatedAt == 0 {
			copy.CreatedAt = now
		}
		newOpen = append(newOpen, &copy)
	}

	sort.Slice(newClosed, func(i, j int) bool {
		if newClosed[i].ExitTimestamp != newClosed[j].ExitTimestamp {
			return newClosed[i].ExitTimestamp < newClosed[j].ExitTimestamp
		}
		return newClosed[i].Sequence < newClosed[j].Sequence
	})
	sort.Slice(newOpen, func(i, j int) bool {
		if newOpen[i].TokenMint != newOpen[j].TokenMint {
			return newOpen[i].TokenMint < newOpen[j].TokenMint
		}
		return newOpen[i].Sequence < newOpen[j].Sequence
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed[walletID] = newClosed
	s.open[walletID] = newOpen
	return nil
}

// ListClosedByWallet retrieves closed lots ordered by (exit timestamp, sequence).
func (s *LotStore) ListClosedByWallet(_ context.Context, walletID string) ([]*domain.ClosedLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClosedLot
	for _, l := range s.closed[walletID] {
		copy := *l
		result = append(result, &copy)
	}
	return result, nil
}

// ListClosedByWalletToken retrieves closed lots for one token, same order.
func (s *LotStore) ListClosedByWalletToken(_ context.Context, walletID, tokenMint string) ([]*domain.ClosedLot, error) {
	if tokenMint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClosedLot
	for _, l := range s.closed[walletID] {
		if l.TokenMint != tokenMint {
			continue
		}
		copy := *l
		result = append(result, &copy)
	}
	return result, nil
}

// ListOpenByWallet retrieves open lots ordered by (token, sequence).
func (s *LotStore) ListOpenByWallet(_ context.Context, walletID string) ([]*domain.OpenLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OpenLot
	for _, l := range s.open[walletID] {
		copy := *l
		result = append(result, &copy)
	}
	return result, nil
}

// ListOpenByWalletToken retrieves open lots for one token in FIFO order.
func (s *LotStore) ListOpenByWalletToken(_ context.Context, walletID, tokenMint string) ([]*domain.OpenLot, error) {
	if tokenMint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OpenLot
	for _, l := range s.open[walletID] {
		if l.TokenMint != tokenMint {
			continue
		}
		copy := *l
		result = append(result, &copy)
	}
	return result, nil
}

var _ storage.LotStore = (*LotStore)(nil)
