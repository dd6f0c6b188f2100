// Package dedupe provides a fast seen-signature filter in front of the
// store's unique constraint.
//
// The filter is best-effort: a miss only costs a point lookup and a
// duplicate-key round trip, so implementations favor speed over certainty
// and the database constraint stays authoritative.
package dedupe

import "context"

// Deduper remembers recently ingested transaction signatures.
type Deduper interface {
	// IsDuplicate reports whether the key was marked seen within the TTL.
	IsDuplicate(ctx context.Context, key string) (bool, error)

	// MarkSeen records the key for the TTL window.
	MarkSeen(ctx context.Context, key string) error

	// Close releases resources held by the implementation.
	Close() error
}

// Key builds the dedupe key for a wallet and transaction signature.
func Key(walletID, txSignature string) string {
	return walletID + "|" + txSignature
}
