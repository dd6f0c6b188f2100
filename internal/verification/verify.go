// Package verification checks persisted classifications against a fresh
// replay of the same history.
//
// Stored actions and change percents are derived values: replaying the
// (wallet, token) history through the classifier must reproduce them
// exactly. A mismatch means an out-of-order arrival (or a bug) left stale
// rows behind, and the wallet needs reclassification.
package verification

import (
	"fmt"

	"github.com/estepeen/tradooor-ledger/internal/classification"
	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// Divergence is one field of one trade disagreeing with its replay.
type Divergence struct {
	TradeID     string
	TxSignature string
	Field       string // "action" | "position_change_percent"
	Stored      string
	Replayed    string
}

// InconsistencyError reports stored classifications diverging from replay.
type InconsistencyError struct {
	WalletID    string
	TokenMint   string
	Divergences []Divergence
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("wallet %s token %s: %d classification(s) diverge from replay",
		e.WalletID, e.TokenMint, len(e.Divergences))
}

// Report is the outcome of verifying one (wallet, token) history.
type Report struct {
	WalletID    string
	TokenMint   string
	Corrected   []*domain.ClassifiedTrade // full replay output, stored order
	Divergences []Divergence
}

// Consistent reports whether the stored classifications match the replay.
func (r *Report) Consistent() bool {
	return len(r.Divergences) == 0
}

// Err returns nil for a consistent report, *InconsistencyError otherwise.
func (r *Report) Err() error {
	if r.Consistent() {
		return nil
	}
	return &InconsistencyError{
		WalletID:    r.WalletID,
		TokenMint:   r.TokenMint,
		Divergences: r.Divergences,
	}
}

// Changed returns the corrected rows whose stored classification diverged,
// in replay order. This is the exact set a correction pass must rewrite.
func (r *Report) Changed() []*domain.ClassifiedTrade {
	if len(r.Divergences) == 0 {
		return nil
	}
	ids := make(map[string]struct{}, len(r.Divergences))
	for _, d := range r.Divergences {
		ids[d.TradeID] = struct{}{}
	}
	changed := make([]*domain.ClassifiedTrade, 0, len(ids))
	for _, t := range r.Corrected {
		if _, ok := ids[t.ID]; ok {
			changed = append(changed, t)
		}
	}
	return changed
}

// Check replays one (wallet, token) history in its stored order and
// compares every trade's action and change percent against the stored
// values. The input must be the pair's complete history in replay order;
// a partial prefix would verify against the wrong starting balance.
func Check(walletID, tokenMint string, trades []*domain.ClassifiedTrade, th classification.Thresholds) (*Report, error) {
	corrected, err := classification.Reclassify(trades, th)
	if err != nil {
		return nil, fmt.Errorf("replay %s/%s: %w", walletID, tokenMint, err)
	}

	report := &Report{
		WalletID:  walletID,
		TokenMint: tokenMint,
		Corrected: corrected,
	}

	for i, stored := range trades {
		replayed := corrected[i]
		if stored.Action != replayed.Action {
			report.Divergences = append(report.Divergences, Divergence{
				TradeID:     stored.ID,
				TxSignature: stored.TxSignature,
				Field:       "action",
				Stored:      stored.Action,
				Replayed:    replayed.Action,
			})
		}
		if !stored.PositionChangePercent.Equal(replayed.PositionChangePercent) {
			report.Divergences = append(report.Divergences, Divergence{
				TradeID:     stored.ID,
				TxSignature: stored.TxSignature,
				Field:       "position_change_percent",
				Stored:      stored.PositionChangePercent.String(),
				Replayed:    replayed.PositionChangePercent.String(),
			})
		}
	}

	return report, nil
}
