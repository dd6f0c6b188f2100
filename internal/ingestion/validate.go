package ingestion

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// ValidateAddress checks that addr is a plausible wallet address: base58,
// 32 bytes, on the ed25519 curve. Program-derived addresses are off-curve
// and cannot sign, so they are not wallets.
func ValidateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: address %q is not base58", storage.ErrInvalidInput, addr)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: address %q decodes to %d bytes, want 32", storage.ErrInvalidInput, addr, len(raw))
	}
	if !isOnCurve(raw) {
		return fmt.Errorf("%w: address %q is not on the ed25519 curve", storage.ErrInvalidInput, addr)
	}
	return nil
}

// ValidateSignature checks that sig is a plausible transaction signature:
// base58 decoding to 64 bytes.
func ValidateSignature(sig string) error {
	raw, err := base58.Decode(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not base58", storage.ErrInvalidInput)
	}
	if len(raw) != 64 {
		return fmt.Errorf("%w: signature decodes to %d bytes, want 64", storage.ErrInvalidInput, len(raw))
	}
	return nil
}

// isOnCurve checks if a 32-byte point is on the ed25519 curve.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
