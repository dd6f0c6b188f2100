// Package reporting renders wallet summaries for operators.
//
// Reports are snapshots of stored state; nothing here recomputes
// classifications or lots. Markdown is for reading, CSV for feeding
// spreadsheets, both writing to a caller-supplied io.Writer.
package reporting

import (
	"time"

	"github.com/estepeen/tradooor-ledger/internal/stats"
)

// Report is one wallet's ledger summary ready for rendering.
type Report struct {
	GeneratedAt time.Time
	Summary     *stats.WalletSummary
}
