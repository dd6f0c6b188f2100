// Package stats reduces a wallet's persisted ledger to summary numbers.
//
// Everything is computed from trades and lots handed in by the caller; the
// package never reads storage. Money amounts stay decimal and are broken
// down per base asset, because SOL, USDC and USDT sums do not mix. Ratios
// are float64: they compare, they do not settle.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// WalletSummary is the full reduction of one wallet's ledger.
type WalletSummary struct {
	WalletID string
	Address  string
	Label    string

	TotalTrades  int
	Buys         int
	Sells        int
	TokensTraded int
	FirstTradeAt int64 // ms, 0 when no trades
	LastTradeAt  int64 // ms, 0 when no trades

	// Closed lots. Matched lots have a known cost basis; pre-history lots
	// (exits beyond tracked entries) count and carry volume but stay out
	// of every PnL aggregate.
	ClosedLots     int
	MatchedLots    int
	PreHistoryLots int
	Wins           int
	Losses         int
	WinRate        float64 // wins / matched lots

	OpenLots int

	MedianLotPnlPercent  float64 // median realized percent over matched lots
	MaxConsecutiveLosses int     // longest losing streak in exit order

	Bases  []BaseBreakdown // per base asset, sorted by symbol
	Tokens []TokenSummary  // per (mint, base), sorted by mint then base
}

// BaseBreakdown sums money amounts for one base asset.
type BaseBreakdown struct {
	BaseToken    domain.BaseToken
	RealizedPnl  decimal.Decimal // matched lots only
	VolumeBought decimal.Decimal // Σ base amount of buy trades
	VolumeSold   decimal.Decimal // Σ base amount of sell trades
	OpenCost     decimal.Decimal // Σ open lot cost basis
}

// TokenSummary is the per-pair row of the report.
type TokenSummary struct {
	TokenMint string
	BaseToken domain.BaseToken

	Trades       int
	Buys         int
	Sells        int
	FirstTradeAt int64
	LastTradeAt  int64

	MatchedLots    int
	PreHistoryLots int
	Wins           int
	Losses         int
	WinRate        float64

	RealizedPnl  decimal.Decimal
	VolumeBought decimal.Decimal
	VolumeSold   decimal.Decimal
	OpenBalance  decimal.Decimal
	OpenCost     decimal.Decimal
}

type pairKey struct {
	mint string
	base domain.BaseToken
}

// Summarize reduces a wallet's trades and lots. The inputs are the
// wallet's complete sets; lot aggregates are meaningless over a partial
// history.
func Summarize(wallet *domain.Wallet, trades []*domain.ClassifiedTrade, closed []*domain.ClosedLot, open []*domain.OpenLot) *WalletSummary {
	s := &WalletSummary{}
	if wallet != nil {
		s.WalletID = wallet.ID
		s.Address = wallet.Address
		s.Label = wallet.Label
	}

	pairs := make(map[pairKey]*TokenSummary)
	bases := make(map[domain.BaseToken]*BaseBreakdown)
	mints := make(map[string]struct{})

	pair := func(mint string, base domain.BaseToken) *TokenSummary {
		k := pairKey{mint: mint, base: base}
		row, ok := pairs[k]
		if !ok {
			row = &TokenSummary{TokenMint: mint, BaseToken: base}
			pairs[k] = row
		}
		return row
	}
	breakdown := func(base domain.BaseToken) *BaseBreakdown {
		row, ok := bases[base]
		if !ok {
			row = &BaseBreakdown{BaseToken: base}
			bases[base] = row
		}
		return row
	}

	for _, t := range trades {
		s.TotalTrades++
		mints[t.TokenMint] = struct{}{}
		if s.FirstTradeAt == 0 || t.Timestamp < s.FirstTradeAt {
			s.FirstTradeAt = t.Timestamp
		}
		if t.Timestamp > s.LastTradeAt {
			s.LastTradeAt = t.Timestamp
		}

		row := pair(t.TokenMint, t.BaseToken)
		row.Trades++
		if row.FirstTradeAt == 0 || t.Timestamp < row.FirstTradeAt {
			row.FirstTradeAt = t.Timestamp
		}
		if t.Timestamp > row.LastTradeAt {
			row.LastTradeAt = t.Timestamp
		}

		bd := breakdown(t.BaseToken)
		switch t.Side {
		case domain.SideBuy:
			s.Buys++
			row.Buys++
			row.VolumeBought = row.VolumeBought.Add(t.AmountBase)
			bd.VolumeBought = bd.VolumeBought.Add(t.AmountBase)
		case domain.SideSell:
			s.Sells++
			row.Sells++
			row.VolumeSold = row.VolumeSold.Add(t.AmountBase)
			bd.VolumeSold = bd.VolumeSold.Add(t.AmountBase)
		}
	}
	s.TokensTraded = len(mints)

	// Exit order matters for the losing-streak scan.
	ordered := make([]*domain.ClosedLot, len(closed))
	copy(ordered, closed)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ExitTimestamp != ordered[j].ExitTimestamp {
			return ordered[i].ExitTimestamp < ordered[j].ExitTimestamp
		}
		return ordered[i].Sequence < ordered[j].Sequence
	})

	var pnlPercents []float64
	streak := 0
	for _, lot := range ordered {
		s.ClosedLots++
		row := pair(lot.TokenMint, lot.BaseToken)

		if lot.IsPreHistory {
			s.PreHistoryLots++
			row.PreHistoryLots++
			streak = 0
			continue
		}

		s.MatchedLots++
		row.MatchedLots++

		win := lot.RealizedPnlBase != nil && lot.RealizedPnlBase.IsPositive()
		if win {
			s.Wins++
			row.Wins++
			streak = 0
		} else {
			s.Losses++
			row.Losses++
			streak++
			if streak > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = streak
			}
		}

		if lot.RealizedPnlBase != nil {
			row.RealizedPnl = row.RealizedPnl.Add(*lot.RealizedPnlBase)
			bd := breakdown(lot.BaseToken)
			bd.RealizedPnl = bd.RealizedPnl.Add(*lot.RealizedPnlBase)
		}
		if lot.RealizedPnlPercent != nil {
			pnlPercents = append(pnlPercents, lot.RealizedPnlPercent.InexactFloat64())
		}
	}
	s.WinRate = winRate(s.Wins, s.MatchedLots)

	sort.Float64s(pnlPercents)
	s.MedianLotPnlPercent = percentile(pnlPercents, 0.50)

	for _, lot := range open {
		s.OpenLots++
		row := pair(lot.TokenMint, lot.BaseToken)
		row.OpenBalance = row.OpenBalance.Add(lot.SizeTokens)
		row.OpenCost = row.OpenCost.Add(lot.CostBasisBase)
		bd := breakdown(lot.BaseToken)
		bd.OpenCost = bd.OpenCost.Add(lot.CostBasisBase)
	}

	for _, row := range pairs {
		row.WinRate = winRate(row.Wins, row.MatchedLots)
		s.Tokens = append(s.Tokens, *row)
	}
	sort.Slice(s.Tokens, func(i, j int) bool {
		if s.Tokens[i].TokenMint != s.Tokens[j].TokenMint {
			return s.Tokens[i].TokenMint < s.Tokens[j].TokenMint
		}
		return s.Tokens[i].BaseToken < s.Tokens[j].BaseToken
	})

	for _, bd := range bases {
		s.Bases = append(s.Bases, *bd)
	}
	sort.Slice(s.Bases, func(i, j int) bool {
		return s.Bases[i].BaseToken < s.Bases[j].BaseToken
	})

	return s
}

// winRate is wins / total, 0 when the denominator is empty.
func winRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// percentile interpolates linearly over an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
