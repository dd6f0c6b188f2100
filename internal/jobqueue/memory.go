package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
)

// MemoryQueue is an in-memory Queue for tests and single-process runs.
type MemoryQueue struct {
	mu          sync.Mutex
	jobs        map[string]*domain.RecalcJob
	maxAttempts int
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		jobs:        make(map[string]*domain.RecalcJob),
		maxAttempts: opts.maxAttempts(),
	}
}

// Enqueue schedules a recalculation, coalescing into an existing pending job.
func (q *MemoryQueue) Enqueue(ctx context.Context, walletID string) error {
	if walletID == "" {
		return storage.ErrInvalidInput
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.WalletID == walletID && job.State == domain.JobStatePending {
			return nil
		}
	}

	now := time.Now().UnixMilli()
	job := &domain.RecalcJob{
		ID:         uuid.NewString(),
		WalletID:   walletID,
		State:      domain.JobStatePending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	q.jobs[job.ID] = job
	return nil
}

// ClaimNext claims the runnable job with the earliest not-before time.
func (q *MemoryQueue) ClaimNext(ctx context.Context, lease time.Duration) (*domain.RecalcJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UnixMilli()

	var next *domain.RecalcJob
	for _, job := range q.jobs {
		if !claimable(job, now) {
			continue
		}
		if next == nil || earlier(job, next) {
			next = job
		}
	}
	if next == nil {
		return nil, ErrEmpty
	}

	leaseUntil := now + lease.Milliseconds()
	next.State = domain.JobStateClaimed
	next.Attempts++
	next.LeaseUntil = &leaseUntil
	next.UpdatedAt = now
	return cloneJob(next), nil
}

// Complete marks a claimed job done.
func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	if job.State == domain.JobStateCompleted || job.State == domain.JobStateExhausted {
		return nil
	}

	job.State = domain.JobStateCompleted
	job.LeaseUntil = nil
	job.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Fail records a failed attempt and reschedules or parks the job.
func (q *MemoryQueue) Fail(ctx context.Context, jobID string, reason string, retryAfter time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}

	now := time.Now().UnixMilli()
	job.LastError = &reason
	job.LeaseUntil = nil
	job.UpdatedAt = now

	if job.Attempts >= q.maxAttempts {
		job.State = domain.JobStateExhausted
		return ErrExhausted
	}

	for _, other := range q.jobs {
		if other.ID != job.ID && other.WalletID == job.WalletID && other.State == domain.JobStatePending {
			job.State = domain.JobStateCompleted
			return nil
		}
	}

	job.State = domain.JobStatePending
	job.NotBefore = now + retryAfter.Milliseconds()
	return nil
}

func claimable(job *domain.RecalcJob, nowMs int64) bool {
	switch job.State {
	case domain.JobStatePending:
		return job.NotBefore <= nowMs
	case domain.JobStateClaimed:
		return job.LeaseUntil != nil && *job.LeaseUntil < nowMs
	default:
		return false
	}
}

func earlier(a, b *domain.RecalcJob) bool {
	if a.NotBefore != b.NotBefore {
		return a.NotBefore < b.NotBefore
	}
	return a.EnqueuedAt < b.EnqueuedAt
}

func cloneJob(job *domain.RecalcJob) *domain.RecalcJob {
	clone := *job
	if job.LeaseUntil != nil {
		v := *job.LeaseUntil
		clone.LeaseUntil = &v
	}
	if job.LastError != nil {
		v := *job.LastError
		clone.LastError = &v
	}
	return &clone
}

var _ Queue = (*MemoryQueue)(nil)
