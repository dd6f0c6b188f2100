package domain

// RecalcJob is one unit of per-wallet recalculation work.
// Corresponds to recalc_jobs table in PostgreSQL.
//
// At most one pending job exists per wallet; triggers arriving while a job
// is pending coalesce into it. Attempts count claims, not enqueues.
type RecalcJob struct {
	ID         string  // UUID primary key
	WalletID   string  // FK to wallets
	State      string  // pending | claimed | completed | exhausted
	Attempts   int     // number of claims so far
	NotBefore  int64   // earliest claimable time, Unix ms (0 = immediately)
	LeaseUntil *int64  // lease expiry (ms) while claimed, else nil
	LastError  *string // most recent failure reason, nullable
	EnqueuedAt int64   // enqueue timestamp (ms)
	UpdatedAt  int64   // last transition timestamp (ms)
}

// Job state constants
const (
	JobStatePending   = "pending"   // waiting to be claimed
	JobStateClaimed   = "claimed"   // leased to a worker
	JobStateCompleted = "completed" // finished or superseded
	JobStateExhausted = "exhausted" // failed max attempts, needs attention
)
