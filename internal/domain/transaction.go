package domain

import (
	"github.com/shopspring/decimal"
)

// RawTransaction is the enhanced-transaction envelope delivered by the
// upstream indexer, either pushed over the feed or pulled via the REST API.
// Legs come in three shapes: native transfers, token transfers, and inner
// swaps (intermediate hops of a routed swap). By envelope contract the
// inner-swap legs are not repeated in the top-level transfer lists.
type RawTransaction struct {
	Signature        string           `json:"signature"`
	Slot             int64            `json:"slot"`
	Timestamp        int64            `json:"timestamp"` // Unix timestamp in seconds
	Source           string           `json:"source"`    // best-effort DEX hint, e.g. "RAYDIUM"
	TransactionError *string          `json:"transactionError,omitempty"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers,omitempty"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers,omitempty"`
	InnerSwaps       []InnerSwap      `json:"innerSwaps,omitempty"`
}

// Failed reports whether the transaction errored on chain.
// Failed transactions have no balance effect.
func (tx *RawTransaction) Failed() bool {
	return tx.TransactionError != nil && *tx.TransactionError != ""
}

// NativeTransfer is a lamport movement between two accounts.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	AmountLamports  int64  `json:"amount"`
}

// TokenTransfer is an SPL token movement. User accounts identify the owning
// wallets; token accounts are the ATAs the transfer touched.
type TokenTransfer struct {
	FromUserAccount  string      `json:"fromUserAccount"`
	ToUserAccount    string      `json:"toUserAccount"`
	FromTokenAccount string      `json:"fromTokenAccount,omitempty"`
	ToTokenAccount   string      `json:"toTokenAccount,omitempty"`
	Mint             string      `json:"mint"`
	RawAmount        TokenAmount `json:"rawTokenAmount"`
}

// InnerSwap is one hop of a multi-pool route. Its legs belong to the same
// atomic transaction but are attributed to the hop's pool program.
type InnerSwap struct {
	Source          string           `json:"source,omitempty"`
	ProgramID       string           `json:"programId,omitempty"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers,omitempty"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers,omitempty"`
}

// TokenAmount carries an exact raw amount in base units plus the mint's
// on-chain decimal precision. Amount is a decimal string to survive JSON
// round-trips without float truncation.
type TokenAmount struct {
	Amount   string `json:"tokenAmount"`
	Decimals int32  `json:"decimals"`
}

// UIAmount converts the raw base-unit amount to UI units (10^-decimals).
func (a TokenAmount) UIAmount() (decimal.Decimal, error) {
	raw, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return raw.Shift(-a.Decimals), nil
}

// LamportsPerSOL is the native decimal precision of SOL.
const LamportsPerSOL = 1_000_000_000

// SOLAmount converts lamports to SOL.
func SOLAmount(lamports int64) decimal.Decimal {
	return decimal.NewFromInt(lamports).Shift(-9)
}
