package reporting

import (
	"fmt"
	"io"
	"strings"
)

// WriteCSV renders the per-token rows as CSV. Token mints and base symbols
// contain no commas, so fields go out unquoted.
func WriteCSV(w io.Writer, r *Report) error {
	var sb strings.Builder

	// Header
	sb.WriteString("token_mint,base_token,trades,buys,sells,matched_lots,pre_history_lots,wins,losses,win_rate,")
	sb.WriteString("realized_pnl,volume_bought,volume_sold,open_balance,open_cost\n")

	// Rows
	for _, row := range r.Summary.Tokens {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%d,%d,%d,%d,%.6f,%s,%s,%s,%s,%s\n",
			row.TokenMint,
			row.BaseToken,
			row.Trades,
			row.Buys,
			row.Sells,
			row.MatchedLots,
			row.PreHistoryLots,
			row.Wins,
			row.Losses,
			row.WinRate,
			row.RealizedPnl.StringFixed(6),
			row.VolumeBought.StringFixed(6),
			row.VolumeSold.StringFixed(6),
			row.OpenBalance.StringFixed(6),
			row.OpenCost.StringFixed(6),
		))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
