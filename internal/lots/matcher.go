// Package lots derives realized-PnL lots from classified trade history.
//
// The matcher consumes the full chronological history for one
// (wallet, token) pair on every run and regenerates the complete lot set.
// After any retroactive correction the previous lots are superseded
// wholesale, never patched.
package lots

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/idhash"
)

// Result is the complete lot set for one (wallet, token) pair.
type Result struct {
	Closed []*domain.ClosedLot
	Open   []*domain.OpenLot
}

// entryLot is an open acquisition awaiting FIFO consumption.
type entryLot struct {
	remaining decimal.Decimal
	price     decimal.Decimal
	timestamp int64
	signature string
	baseToken domain.BaseToken
}

// Match runs FIFO lot consumption over the ordered trade history of one
// (wallet, token) pair. Deterministic: identical input yields identical
// output, required because the matcher re-runs wholesale after corrections.
// All arithmetic is decimal; rounding belongs to presentation.
func Match(trades []*domain.ClassifiedTrade) (*Result, error) {
	result := &Result{}
	if len(trades) == 0 {
		return result, nil
	}

	walletID := trades[0].WalletID
	tokenMint := trades[0].TokenMint

	var queue []*entryLot
	seq := 0

	for _, t := range trades {
		if t.WalletID != walletID || t.TokenMint != tokenMint {
			return nil, fmt.Errorf("match %s: mixed pair %s/%s in history for %s/%s",
				t.TxSignature, t.WalletID, t.TokenMint, walletID, tokenMint)
		}
		if !t.AmountToken.IsPositive() {
			return nil, fmt.Errorf("match %s: non-positive token amount %s", t.TxSignature, t.AmountToken)
		}

		switch t.Side {
		case domain.SideBuy:
			queue = append(queue, &entryLot{
				remaining: t.AmountToken,
				price:     t.PriceBasePerToken,
				timestamp: t.Timestamp,
				signature: t.TxSignature,
				baseToken: t.BaseToken,
			})
		case domain.SideSell:
			closed, rest := consume(queue, t, walletID, tokenMint, &seq)
			result.Closed = append(result.Closed, closed...)
			queue = rest
		default:
			return nil, fmt.Errorf("match %s: unknown side %q", t.TxSignature, t.Side)
		}
	}

	// Whatever the exits never reached is the current open position.
	for i, lot := range queue {
		result.Open = append(result.Open, &domain.OpenLot{
			ID:                idhash.ComputeLotID(walletID, tokenMint, i, lot.signature),
			WalletID:          walletID,
			TokenMint:         tokenMint,
			Sequence:          i,
			EntryTimestamp:    lot.timestamp,
			EntrySignature:    lot.signature,
			SizeTokens:        lot.remaining,
			PriceBasePerToken: lot.price,
			CostBasisBase:     lot.remaining.Mul(lot.price),
			BaseToken:         lot.baseToken,
		})
	}

	return result, nil
}

// consume applies one exit trade against the front of the entry queue,
// oldest lot first. A remainder larger than all tracked entries becomes a
// single pre-history lot with unknowable cost basis.
func consume(queue []*entryLot, exit *domain.ClassifiedTrade, walletID, tokenMint string, seq *int) ([]*domain.ClosedLot, []*entryLot) {
	var closed []*domain.ClosedLot
	remaining := exit.AmountToken

	for remaining.IsPositive() && len(queue) > 0 {
		front := queue[0]

		slice := remaining
		if front.remaining.LessThan(slice) {
			slice = front.remaining
		}

		cost := slice.Mul(front.price)
		proceeds := slice.Mul(exit.PriceBasePerToken)
		pnl := proceeds.Sub(cost)

		lot := &domain.ClosedLot{
			ID:              idhash.ComputeLotID(walletID, tokenMint, *seq, exit.TxSignature),
			WalletID:        walletID,
			TokenMint:       tokenMint,
			Sequence:        *seq,
			EntryTimestamp:  front.timestamp,
			EntrySignature:  front.signature,
			ExitTimestamp:   exit.Timestamp,
			ExitSignature:   exit.TxSignature,
			SizeTokens:      slice,
			CostBasisBase:   &cost,
			ProceedsBase:    proceeds,
			RealizedPnlBase: &pnl,
			IsPreHistory:    false,
			BaseToken:       exit.BaseToken,
		}
		if cost.IsPositive() {
			pct := pnl.Div(cost).Mul(decimal.NewFromInt(100))
			lot.RealizedPnlPercent = &pct
		}
		closed = append(closed, lot)
		*seq++

		front.remaining = front.remaining.Sub(slice)
		remaining = remaining.Sub(slice)
		if !front.remaining.IsPositive() {
			queue = queue[1:]
		}
	}

	if remaining.IsPositive() {
		// Sell exceeds tracked history. Cost basis is unknowable; the
		// size still counts toward volume statistics.
		lot := &domain.ClosedLot{
			ID:            idhash.ComputeLotID(walletID, tokenMint, *seq, exit.TxSignature),
			WalletID:      walletID,
			TokenMint:     tokenMint,
			Sequence:      *seq,
			ExitTimestamp: exit.Timestamp,
			ExitSignature: exit.TxSignature,
			SizeTokens:    remaining,
			ProceedsBase:  remaining.Mul(exit.PriceBasePerToken),
			IsPreHistory:  true,
			BaseToken:     exit.BaseToken,
		}
		closed = append(closed, lot)
		*seq++
	}

	return closed, queue
}
