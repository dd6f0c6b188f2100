package normalization

import (
	"errors"
	"fmt"
)

// RejectReason explains why a transaction is not a valid single-token trade.
// Rejections are terminal: the transaction is logged and skipped, never
// retried.
type RejectReason string

const (
	// RejectNoWalletInvolvement: no transfer leg touches the tracked wallet.
	RejectNoWalletInvolvement RejectReason = "NO_WALLET_INVOLVEMENT"
	// RejectBaseToBaseSwap: both sides are base assets (currency conversion).
	RejectBaseToBaseSwap RejectReason = "BASE_TO_BASE_SWAP"
	// RejectMissingLegs: legs exist but do not form a complete swap shape.
	RejectMissingLegs RejectReason = "MISSING_LEGS"
	// RejectZeroAmount: a side nets to zero or the price is degenerate.
	RejectZeroAmount RejectReason = "ZERO_AMOUNT"
)

// RejectError is the typed rejection returned by Normalize.
type RejectError struct {
	Reason      RejectReason
	TxSignature string
	Detail      string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("swap rejected (%s): %s", e.Reason, e.TxSignature)
	}
	return fmt.Sprintf("swap rejected (%s): %s: %s", e.Reason, e.TxSignature, e.Detail)
}

func reject(reason RejectReason, sig, detail string) *RejectError {
	return &RejectError{Reason: reason, TxSignature: sig, Detail: detail}
}

// ReasonOf extracts the rejection reason from an error chain.
// The second return is false for non-rejection errors.
func ReasonOf(err error) (RejectReason, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// IsReject reports whether the error is a normalization rejection.
func IsReject(err error) bool {
	_, ok := ReasonOf(err)
	return ok
}
