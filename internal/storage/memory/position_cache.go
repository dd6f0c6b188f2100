package memory

import (
	"context"
	"sync"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// PositionCache is an in-memory implementation of storage.PositionCache.
// There is no durable backend: position state is always recoverable by
// replaying the pair's trades.
type PositionCache struct {
	mu   sync.RWMutex
	data map[string]*domain.PositionState // wallet_id|token_mint
}

// NewPositionCache creates a new in-memory position cache.
func NewPositionCache() *PositionCache {
	return &PositionCache{
		data: make(map[string]*domain.PositionState),
	}
}

func pairKey(walletID, tokenMint string) string {
	return walletID + "|" + tokenMint
}

// Get returns the cached state. Returns ErrNotFound when the pair has never
// been cached.
func (c *PositionCache) Get(_ context.Context, walletID, tokenMint string) (*domain.PositionState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, exists := c.data[pairKey(walletID, tokenMint)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *state
	return &copy, nil
}

// Set overwrites the cached state for the pair.
func (c *PositionCache) Set(_ context.Context, state *domain.PositionState) error {
	if state == nil || state.WalletID == "" || state.TokenMint == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copy := *state
	c.data[pairKey(state.WalletID, state.TokenMint)] = &copy
	return nil
}

// DeleteByWallet drops all cached pairs for a wallet.
func (c *PositionCache) DeleteByWallet(_ context.Context, walletID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, state := range c.data {
		if state.WalletID == walletID {
			delete(c.data, key)
		}
	}
	return nil
}

var _ storage.PositionCache = (*PositionCache)(nil)
