// Package classification turns normalized swaps into position actions.
//
// Action and position-change percent depend on the running balance, which
// itself depends on every prior trade for the (wallet, token) pair. The
// package is therefore a pure reduction: callers replay ordered history,
// they never patch single trades.
package classification

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// Thresholds hold the numeric guards of the classifier. The defaults
// reproduce upstream behavior; both knobs exist because the clamp is a
// heuristic against bad indexer data, not a principled constant.
type Thresholds struct {
	// Epsilon treats balances this close to zero as exactly zero
	// (on-chain decimal noise).
	Epsilon decimal.Decimal
	// ClampTriggerPercent: a ratio-implied change beyond this is treated
	// as an effective full open/close instead of trusting the prior
	// balance.
	ClampTriggerPercent decimal.Decimal
}

// DefaultThresholds returns the production thresholds: ε=1e-6, trigger=1000%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Epsilon:             decimal.New(1, -6),
		ClampTriggerPercent: decimal.NewFromInt(1000),
	}
}

var hundred = decimal.NewFromInt(100)

// Outcome is the result of classifying one swap against a prior balance.
type Outcome struct {
	Action                string
	PositionChangePercent decimal.Decimal
	NewBalance            decimal.Decimal
}

// Classify computes the position action for one swap given the freshly
// replayed prior balance. Pure; the only errors are malformed swaps.
func Classify(prevBalance decimal.Decimal, swap *domain.NormalizedSwap, th Thresholds) (Outcome, error) {
	if !swap.AmountToken.IsPositive() {
		return Outcome{}, fmt.Errorf("classify %s: non-positive token amount %s", swap.TxSignature, swap.AmountToken)
	}

	switch swap.Side {
	case domain.SideBuy:
		return classifyBuy(prevBalance, swap.AmountToken, th), nil
	case domain.SideSell:
		return classifySell(prevBalance, swap.AmountToken, th), nil
	default:
		return Outcome{}, fmt.Errorf("classify %s: unknown side %q", swap.TxSignature, swap.Side)
	}
}

func classifyBuy(prevBalance, amount decimal.Decimal, th Thresholds) Outcome {
	if prevBalance.LessThanOrEqual(th.Epsilon) {
		return Outcome{
			Action:                domain.ActionBuy,
			PositionChangePercent: hundred,
			NewBalance:            amount,
		}
	}

	raw := amount.Div(prevBalance).Mul(hundred)
	pct := raw
	if raw.GreaterThan(th.ClampTriggerPercent) {
		// Ratio this absurd means the prior balance cannot be trusted;
		// treat as an effective new position.
		pct = hundred
	} else if raw.GreaterThan(hundred) {
		pct = hundred
	}

	return Outcome{
		Action:                domain.ActionAdd,
		PositionChangePercent: pct,
		NewBalance:            prevBalance.Add(amount),
	}
}

func classifySell(prevBalance, amount decimal.Decimal, th Thresholds) Outcome {
	newBalance := prevBalance.Sub(amount)
	if newBalance.IsNegative() {
		newBalance = decimal.Zero
	}

	if prevBalance.LessThanOrEqual(th.Epsilon) {
		// Nothing meaningful to subdivide; the sell exceeds any tracked
		// holding entirely.
		return Outcome{
			Action:                domain.ActionSell,
			PositionChangePercent: decimal.Zero,
			NewBalance:            newBalance,
		}
	}

	if newBalance.LessThanOrEqual(th.Epsilon) {
		return Outcome{
			Action:                domain.ActionSell,
			PositionChangePercent: hundred.Neg(),
			NewBalance:            newBalance,
		}
	}

	raw := amount.Div(prevBalance).Mul(hundred).Neg()
	pct := raw
	if raw.Abs().GreaterThan(th.ClampTriggerPercent) {
		pct = hundred.Neg()
	} else if raw.LessThan(hundred.Neg()) {
		pct = hundred.Neg()
	}

	return Outcome{
		Action:                domain.ActionRemove,
		PositionChangePercent: pct,
		NewBalance:            newBalance,
	}
}
