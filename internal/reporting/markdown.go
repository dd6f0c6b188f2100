package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// WriteMarkdown renders the report as Markdown.
func WriteMarkdown(w io.Writer, r *Report) error {
	var sb strings.Builder
	s := r.Summary

	// Header
	sb.WriteString("# Wallet Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if s.Label != "" {
		sb.WriteString(fmt.Sprintf("Wallet: %s (%s)\n\n", s.Address, s.Label))
	} else {
		sb.WriteString(fmt.Sprintf("Wallet: %s\n\n", s.Address))
	}

	// Overview
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Trades | %d (%d buys / %d sells) |\n", s.TotalTrades, s.Buys, s.Sells))
	sb.WriteString(fmt.Sprintf("| Tokens Traded | %d |\n", s.TokensTraded))
	sb.WriteString(fmt.Sprintf("| First Trade | %s |\n", fmtTimestamp(s.FirstTradeAt)))
	sb.WriteString(fmt.Sprintf("| Last Trade | %s |\n", fmtTimestamp(s.LastTradeAt)))
	sb.WriteString(fmt.Sprintf("| Closed Lots | %d (%d matched / %d pre-history) |\n", s.ClosedLots, s.MatchedLots, s.PreHistoryLots))
	sb.WriteString(fmt.Sprintf("| Open Lots | %d |\n", s.OpenLots))
	sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", s.Wins, s.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", s.WinRate))
	sb.WriteString(fmt.Sprintf("| Median Lot PnL | %.2f%% |\n", s.MedianLotPnlPercent))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString("\n")

	// Per-base money totals
	sb.WriteString("## Realized Performance\n\n")
	if len(s.Bases) > 0 {
		sb.WriteString("| Base | Realized PnL | Bought | Sold | Open Cost |\n")
		sb.WriteString("|------|--------------|--------|------|-----------|\n")
		for _, b := range s.Bases {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				b.BaseToken,
				b.RealizedPnl.StringFixed(4),
				b.VolumeBought.StringFixed(4),
				b.VolumeSold.StringFixed(4),
				b.OpenCost.StringFixed(4)))
		}
	} else {
		sb.WriteString("No realized performance to report.\n")
	}
	sb.WriteString("\n")

	// Per-token rows
	sb.WriteString("## Tokens\n\n")
	if len(s.Tokens) > 0 {
		sb.WriteString("| Token | Base | Trades | Lots | WinRate | Realized PnL | Bought | Sold | Open Balance | Open Cost |\n")
		sb.WriteString("|-------|------|--------|------|---------|--------------|--------|------|--------------|-----------|\n")
		for _, row := range s.Tokens {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %.4f | %s | %s | %s | %s | %s |\n",
				row.TokenMint, row.BaseToken,
				row.Trades, row.MatchedLots, row.WinRate,
				row.RealizedPnl.StringFixed(4),
				row.VolumeBought.StringFixed(4),
				row.VolumeSold.StringFixed(4),
				row.OpenBalance.StringFixed(4),
				row.OpenCost.StringFixed(4)))
		}
	} else {
		sb.WriteString("No tokens traded.\n")
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// fmtTimestamp renders a millisecond timestamp, "-" when unset.
func fmtTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
