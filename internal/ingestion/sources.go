package ingestion

import (
	"context"
	"errors"
	"log"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/normalization"
)

// Envelope is one feed delivery: a raw transaction observed for a tracked
// wallet.
type Envelope struct {
	WalletAddress string                 `json:"walletAddress"`
	Transaction   *domain.RawTransaction `json:"transaction"`
}

// Source is a live feed of transaction envelopes. The channel returned by
// Envelopes closes when the source shuts down.
type Source interface {
	Envelopes() <-chan Envelope
	Close() error
}

// Pump drains a source into the coordinator until the context is cancelled
// or the source channel closes. Per-envelope failures are logged, never
// fatal: transactions a live feed drops or fails are recovered by the
// reconciliation sweep.
func Pump(ctx context.Context, c *Coordinator, src Source, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-src.Envelopes():
			if !ok {
				return errors.New("source channel closed")
			}
			err := c.Ingest(ctx, env.WalletAddress, env.Transaction)
			switch {
			case err == nil, errors.Is(err, ErrAlreadyExists), normalization.IsReject(err):
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				sig := ""
				if env.Transaction != nil {
					sig = env.Transaction.Signature
				}
				logger.Printf("Ingest failed for envelope %s: %v", sig, err)
			}
		}
	}
}
