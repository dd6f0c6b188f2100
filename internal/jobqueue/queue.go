// Package jobqueue hands out per-wallet recalculation work.
//
// Jobs coalesce: enqueueing a wallet that already has a pending job is a
// no-op, so a burst of trades for one wallet yields a single recalculation.
// Claims take a lease; a worker that dies mid-job loses the lease and the
// job becomes claimable again.
package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

var (
	// ErrEmpty is returned by ClaimNext when no job is claimable.
	ErrEmpty = errors.New("no claimable job")

	// ErrExhausted is returned by Fail when the job has used up its
	// attempts and was parked for manual attention.
	ErrExhausted = errors.New("job exhausted max attempts")
)

// DefaultMaxAttempts is used when Options.MaxAttempts is zero.
const DefaultMaxAttempts = 5

// Options configures a queue implementation.
type Options struct {
	// MaxAttempts is the number of claims a job may consume before it is
	// marked exhausted instead of retried.
	MaxAttempts int
}

func (o Options) maxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Queue schedules wallet recalculations.
type Queue interface {
	// Enqueue schedules a recalculation for the wallet. If a pending job
	// for the wallet already exists the call coalesces into it.
	Enqueue(ctx context.Context, walletID string) error

	// ClaimNext claims the runnable job with the earliest not-before time
	// and leases it for the given duration. Jobs whose lease expired are
	// claimable again. Returns ErrEmpty when nothing is runnable.
	ClaimNext(ctx context.Context, lease time.Duration) (*domain.RecalcJob, error)

	// Complete marks a claimed job done. Completing a job another worker
	// re-claimed after a lease expiry is harmless: recalculation output is
	// deterministic and replaced wholesale.
	Complete(ctx context.Context, jobID string) error

	// Fail records a failed attempt. The job becomes claimable again after
	// retryAfter, unless its attempts are used up, in which case it is
	// marked exhausted and ErrExhausted is returned. If a newer pending
	// job for the same wallet appeared while this one was claimed, the
	// failed job is marked completed instead and the newer job carries on.
	Fail(ctx context.Context, jobID string, reason string, retryAfter time.Duration) error
}
