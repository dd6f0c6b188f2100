package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Wallet
	byAddress map[string]string // address -> wallet id
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		byID:      make(map[string]*domain.Wallet),
		byAddress: make(map[string]string),
	}
}

// Insert adds a new wallet. Returns ErrDuplicateKey if the id or address
// already exists.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.ID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[w.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byAddress[w.Address]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *w
	s.byID[w.ID] = &copy
	s.byAddress[w.Address] = w.ID
	return nil
}

// GetByID retrieves a wallet by id. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByID(_ context.Context, id string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneWallet(w), nil
}

// GetByAddress retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByAddress(_ context.Context, address string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byAddress[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneWallet(s.byID[id]), nil
}

// GetOrCreate returns the wallet with the given address, registering it first
// when unseen.
func (s *WalletStore) GetOrCreate(_ context.Context, address string) (*domain.Wallet, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.byAddress[address]; exists {
		return cloneWallet(s.byID[id]), nil
	}

	now := time.Now().UnixMilli()
	w := &domain.Wallet{
		ID:           uuid.NewString(),
		Address:      address,
		TrackedSince: now,
		CreatedAt:    now,
	}
	s.byID[w.ID] = w
	s.byAddress[address] = w.ID
	return cloneWallet(w), nil
}

// List retrieves all tracked wallets ordered by creation time.
func (s *WalletStore) List(_ context.Context) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Wallet, 0, len(s.byID))
	for _, w := range s.byID {
		result = append(result, cloneWallet(w))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// TouchLastTrade advances last_trade_at to tsMs if it is newer than the
// stored value. Returns ErrNotFound if the wallet does not exist.
func (s *WalletStore) TouchLastTrade(_ context.Context, id string, tsMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.byID[id]
	if !exists {
		return storage.ErrNotFound
	}

	if w.LastTradeAt == nil || *w.LastTradeAt < tsMs {
		ts := tsMs
		w.LastTradeAt = &ts
	}
	return nil
}

// cloneWallet copies a wallet including its nullable timestamp.
func cloneWallet(w *domain.Wallet) *domain.Wallet {
	copy := *w
	if w.LastTradeAt != nil {
		ts := *w.LastTradeAt
		copy.LastTradeAt = &ts
	}
	return &copy
}

var _ storage.WalletStore = (*WalletStore)(nil)
