package domain

import (
	"github.com/shopspring/decimal"
)

// NormalizedSwap is the canonical single-token trade distilled from a raw
// transaction envelope: exactly one non-base token moving against a base
// asset. It is ephemeral; persistence happens after classification.
type NormalizedSwap struct {
	TxSignature       string          // Solana transaction signature
	WalletAddress     string          // tracked wallet the swap concerns
	TokenMint         string          // traded (non-base) token mint
	Side              string          // "buy" | "sell"
	AmountToken       decimal.Decimal // net token amount, UI units, > 0
	AmountBase        decimal.Decimal // net base-asset amount, > 0
	PriceBasePerToken decimal.Decimal // amountBase / amountToken
	BaseToken         BaseToken       // SOL | USDC | USDT
	DexSource         string          // informational venue hint
	Slot              int64           // Solana slot number
	Timestamp         int64           // Unix timestamp in milliseconds
}

// Swap side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)
