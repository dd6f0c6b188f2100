package normalization

import (
	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// legKind tags the transfer shapes the flattener can produce.
type legKind int

const (
	legNative legKind = iota + 1
	legToken
)

// leg is one wallet-relevant transfer, flattened from the envelope.
// Inner-swap legs carry inner=true and their hop's source hint.
type leg struct {
	kind   legKind
	inner  bool
	source string
	native *domain.NativeTransfer
	token  *domain.TokenTransfer
}

// netFlows accumulates signed per-asset net changes for one wallet.
// Native lamports and wrapped SOL share the BaseSOL bucket, so wrap and
// unwrap legs cancel instead of showing up as phantom trades.
type netFlows struct {
	base     map[domain.BaseToken]decimal.Decimal
	token    map[string]decimal.Decimal
	sawToken bool // wallet had at least one non-base token leg
}

// Normalize reduces a raw transaction envelope to the canonical single-token
// swap it represents for the given wallet. It is pure: no I/O, no state.
// Failures are *RejectError values; any other error indicates a malformed
// amount string in the envelope and is also wrapped as a rejection.
func Normalize(tx *domain.RawTransaction, wallet string) (*domain.NormalizedSwap, error) {
	if tx == nil || (len(tx.NativeTransfers) == 0 && len(tx.TokenTransfers) == 0 && len(tx.InnerSwaps) == 0) {
		sig := ""
		if tx != nil {
			sig = tx.Signature
		}
		return nil, reject(RejectNoWalletInvolvement, sig, "no transfer legs")
	}

	legs := flattenLegs(tx)

	flows, involved, err := accumulate(legs, wallet)
	if err != nil {
		return nil, reject(RejectZeroAmount, tx.Signature, err.Error())
	}
	if !involved {
		return nil, reject(RejectNoWalletInvolvement, tx.Signature, "")
	}
	if tx.Failed() {
		return nil, reject(RejectMissingLegs, tx.Signature, "transaction failed on chain")
	}

	// Exactly one non-base mint may move net in or out of the wallet.
	var tokenMint string
	var tokenNet decimal.Decimal
	moving := 0
	for mint, net := range flows.token {
		if net.IsZero() {
			continue
		}
		moving++
		tokenMint, tokenNet = mint, net
	}

	switch {
	case moving == 0:
		if isBaseConversion(flows.base) {
			return nil, reject(RejectBaseToBaseSwap, tx.Signature, "")
		}
		if flows.sawToken {
			return nil, reject(RejectZeroAmount, tx.Signature, "token legs net to zero")
		}
		return nil, reject(RejectMissingLegs, tx.Signature, "no traded token leg")
	case moving > 1:
		return nil, reject(RejectMissingLegs, tx.Signature, "more than one non-base mint moved")
	}

	side := domain.SideBuy
	if tokenNet.IsNegative() {
		side = domain.SideSell
	}

	// The base asset must move opposite to the token. Among several moving
	// base buckets the largest opposite-direction one is the quote side;
	// the rest is router dust.
	baseAsset, baseNet, ok := opposingBase(flows.base, tokenNet)
	if !ok {
		return nil, reject(RejectMissingLegs, tx.Signature, "no base-asset countermove")
	}

	amountToken := tokenNet.Abs()
	amountBase := baseNet.Abs()
	if amountToken.IsZero() || amountBase.IsZero() {
		return nil, reject(RejectZeroAmount, tx.Signature, "")
	}
	price := amountBase.Div(amountToken)
	if !price.IsPositive() {
		return nil, reject(RejectZeroAmount, tx.Signature, "degenerate price")
	}

	return &domain.NormalizedSwap{
		TxSignature:       tx.Signature,
		WalletAddress:     wallet,
		TokenMint:         tokenMint,
		Side:              side,
		AmountToken:       amountToken,
		AmountBase:        amountBase,
		PriceBasePerToken: price,
		BaseToken:         baseAsset,
		DexSource:         dexSource(tx),
		Slot:              tx.Slot,
		Timestamp:         tx.Timestamp * 1000,
	}, nil
}

// flattenLegs unrolls the envelope into a single leg list, inner swaps
// included. The switch in accumulate matches each kind exhaustively.
func flattenLegs(tx *domain.RawTransaction) []leg {
	legs := make([]leg, 0, len(tx.NativeTransfers)+len(tx.TokenTransfers))
	for i := range tx.NativeTransfers {
		legs = append(legs, leg{kind: legNative, native: &tx.NativeTransfers[i]})
	}
	for i := range tx.TokenTransfers {
		legs = append(legs, leg{kind: legToken, token: &tx.TokenTransfers[i]})
	}
	for s := range tx.InnerSwaps {
		hop := &tx.InnerSwaps[s]
		for i := range hop.NativeTransfers {
			legs = append(legs, leg{kind: legNative, inner: true, source: hop.Source, native: &hop.NativeTransfers[i]})
		}
		for i := range hop.TokenTransfers {
			legs = append(legs, leg{kind: legToken, inner: true, source: hop.Source, token: &hop.TokenTransfers[i]})
		}
	}
	return legs
}

func accumulate(legs []leg, wallet string) (*netFlows, bool, error) {
	flows := &netFlows{
		base:  make(map[domain.BaseToken]decimal.Decimal),
		token: make(map[string]decimal.Decimal),
	}
	involved := false

	for _, l := range legs {
		switch l.kind {
		case legNative:
			out := l.native.FromUserAccount == wallet
			in := l.native.ToUserAccount == wallet
			if !out && !in {
				continue
			}
			involved = true
			amt := domain.SOLAmount(l.native.AmountLamports)
			if out {
				flows.base[domain.BaseSOL] = flows.base[domain.BaseSOL].Sub(amt)
			}
			if in {
				flows.base[domain.BaseSOL] = flows.base[domain.BaseSOL].Add(amt)
			}
		case legToken:
			out := l.token.FromUserAccount == wallet
			in := l.token.ToUserAccount == wallet
			if !out && !in {
				continue
			}
			involved = true
			amt, err := l.token.RawAmount.UIAmount()
			if err != nil {
				return nil, involved, err
			}
			if base, ok := domain.BaseTokenForMint(l.token.Mint); ok {
				if out {
					flows.base[base] = flows.base[base].Sub(amt)
				}
				if in {
					flows.base[base] = flows.base[base].Add(amt)
				}
				continue
			}
			flows.sawToken = true
			if out {
				flows.token[l.token.Mint] = flows.token[l.token.Mint].Sub(amt)
			}
			if in {
				flows.token[l.token.Mint] = flows.token[l.token.Mint].Add(amt)
			}
		}
	}

	return flows, involved, nil
}

// isBaseConversion reports whether the base buckets describe a currency
// conversion: value left one base asset and entered another.
func isBaseConversion(base map[domain.BaseToken]decimal.Decimal) bool {
	posCount, negCount := 0, 0
	for _, net := range base {
		switch {
		case net.IsPositive():
			posCount++
		case net.IsNegative():
			negCount++
		}
	}
	return posCount > 0 && negCount > 0
}

// opposingBase picks the base bucket countering tokenNet: opposite sign,
// largest absolute value. Deterministic under map iteration because ties on
// magnitude resolve by fixed asset priority.
func opposingBase(base map[domain.BaseToken]decimal.Decimal, tokenNet decimal.Decimal) (domain.BaseToken, decimal.Decimal, bool) {
	wantNegative := tokenNet.IsPositive()

	var bestAsset domain.BaseToken
	var bestNet decimal.Decimal
	found := false
	for _, asset := range []domain.BaseToken{domain.BaseSOL, domain.BaseUSDC, domain.BaseUSDT} {
		net, ok := base[asset]
		if !ok || net.IsZero() {
			continue
		}
		if wantNegative != net.IsNegative() {
			continue
		}
		if !found || net.Abs().GreaterThan(bestNet.Abs()) {
			bestAsset, bestNet = asset, net
			found = true
		}
	}
	return bestAsset, bestNet, found
}

// dexSource returns the envelope's venue hint, falling back to the first
// inner hop that carries one. Unknown sources are accepted as-is.
func dexSource(tx *domain.RawTransaction) string {
	if tx.Source != "" {
		return tx.Source
	}
	for _, hop := range tx.InnerSwaps {
		if hop.Source != "" {
			return hop.Source
		}
	}
	return ""
}
