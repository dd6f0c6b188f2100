package classification

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// SortTrades orders trades by timestamp, stably: trades sharing a timestamp
// keep their relative (insertion) order. Stores already return this order;
// the helper exists for callers assembling histories by hand.
func SortTrades(trades []*domain.ClassifiedTrade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp < trades[j].Timestamp
	})
}

// Replay runs the classifier over an ordered trade history and returns the
// final balance. The history must be in (timestamp, insertion) order; the
// replayed balance sequence is the correctness reference for every cached
// position value.
func Replay(trades []*domain.ClassifiedTrade, th Thresholds) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, t := range trades {
		out, err := Classify(balance, &t.NormalizedSwap, th)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("replay: %w", err)
		}
		balance = out.NewBalance
	}
	return balance, nil
}

// BalanceBefore replays only the prefix of the history a new swap would be
// inserted after: every trade with a timestamp at or before the cutoff.
// Equal timestamps sort before the newcomer (ties break by input order, and
// persisted trades arrived first).
func BalanceBefore(trades []*domain.ClassifiedTrade, cutoffMs int64, th Thresholds) (decimal.Decimal, error) {
	prefix := trades
	for i, t := range trades {
		if t.Timestamp > cutoffMs {
			prefix = trades[:i]
			break
		}
	}
	return Replay(prefix, th)
}

// Reclassify recomputes action and percent for an entire ordered history,
// returning fresh copies in the same order. The input is not mutated. This
// is the single canonical correction path: the ingestion coordinator, the
// recalculation worker, and the maintenance CLI all call it.
func Reclassify(trades []*domain.ClassifiedTrade, th Thresholds) ([]*domain.ClassifiedTrade, error) {
	nowMs := time.Now().UnixMilli()
	out := make([]*domain.ClassifiedTrade, 0, len(trades))
	balance := decimal.Zero

	for _, t := range trades {
		res, err := Classify(balance, &t.NormalizedSwap, th)
		if err != nil {
			return nil, fmt.Errorf("reclassify: %w", err)
		}
		clone := *t
		clone.Action = res.Action
		clone.PositionChangePercent = res.PositionChangePercent
		if clone.CreatedAt == 0 {
			clone.CreatedAt = nowMs
		}
		out = append(out, &clone)
		balance = res.NewBalance
	}

	return out, nil
}
