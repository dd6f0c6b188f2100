package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeLotID computes a deterministic lot id using SHA256.
// Formula: SHA256(wallet_id|token_mint|sequence|anchor_signature)
// The anchor is the exit signature for closed lots and the entry signature
// for open lots. Returns hex-encoded hash (64 characters).
func ComputeLotID(walletID, tokenMint string, sequence int, anchorSignature string) string {
	data := fmt.Sprintf("%s|%s|%d|%s",
		walletID,
		tokenMint,
		sequence,
		anchorSignature,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
