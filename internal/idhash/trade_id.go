package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade id using SHA256.
// Formula: SHA256(wallet_id|token_mint|tx_signature)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(walletID, tokenMint, txSignature string) string {
	data := fmt.Sprintf("%s|%s|%s",
		walletID,
		tokenMint,
		txSignature,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
