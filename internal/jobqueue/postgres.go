package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/estepeen/tradooor-ledger/internal/domain"
	"github.com/estepeen/tradooor-ledger/internal/storage"
	"github.com/estepeen/tradooor-ledger/internal/storage/postgres"
)

const jobColumns = `id, wallet_id, state, attempts, not_before, lease_until, last_error, enqueued_at, updated_at`

// PostgresQueue is a Queue backed by the recalc_jobs table.
//
// Claims use FOR UPDATE SKIP LOCKED so competing workers never block each
// other. The partial unique index on (wallet_id) WHERE state = 'pending'
// enforces coalescing.
type PostgresQueue struct {
	pool        *postgres.Pool
	maxAttempts int
}

// NewPostgresQueue creates a queue over the given connection pool.
func NewPostgresQueue(pool *postgres.Pool, opts Options) *PostgresQueue {
	return &PostgresQueue{pool: pool, maxAttempts: opts.maxAttempts()}
}

var _ Queue = (*PostgresQueue)(nil)

// Enqueue schedules a recalculation, coalescing into an existing pending job.
func (q *PostgresQueue) Enqueue(ctx context.Context, walletID string) error {
	if walletID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO recalc_jobs (id, wallet_id, state, attempts, not_before, enqueued_at, updated_at)
		VALUES ($1, $2, 'pending', 0, 0, $3, $3)
		ON CONFLICT (wallet_id) WHERE state = 'pending' DO NOTHING`

	now := time.Now().UnixMilli()
	if _, err := q.pool.Exec(ctx, query, uuid.NewString(), walletID, now); err != nil {
		return fmt.Errorf("enqueue recalc job: %w", err)
	}
	return nil
}

// ClaimNext claims the runnable job with the earliest not-before time.
func (q *PostgresQueue) ClaimNext(ctx context.Context, lease time.Duration) (*domain.RecalcJob, error) {
	query := `
		UPDATE recalc_jobs
		SET state = 'claimed', attempts = attempts + 1, lease_until = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM recalc_jobs
			WHERE (state = 'pending' AND not_before <= $2)
			   OR (state = 'claimed' AND lease_until < $2)
			ORDER BY not_before ASC, enqueued_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	now := time.Now().UnixMilli()
	job, err := scanJob(q.pool.QueryRow(ctx, query, now+lease.Milliseconds(), now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("claim recalc job: %w", err)
	}
	return job, nil
}

// Complete marks a claimed job done.
func (q *PostgresQueue) Complete(ctx context.Context, jobID string) error {
	query := `
		UPDATE recalc_jobs
		SET state = 'completed', lease_until = NULL, updated_at = $2
		WHERE id = $1 AND state IN ('pending', 'claimed')`

	tag, err := q.pool.Exec(ctx, query, jobID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("complete recalc job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := q.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recalc_jobs WHERE id = $1)`, jobID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check recalc job: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
	}
	return nil
}

// Fail records a failed attempt and reschedules or parks the job.
func (q *PostgresQueue) Fail(ctx context.Context, jobID string, reason string, retryAfter time.Duration) error {
	query := `
		UPDATE recalc_jobs
		SET state = CASE
				WHEN attempts >= $3 THEN 'exhausted'
				WHEN EXISTS (
					SELECT 1 FROM recalc_jobs p
					WHERE p.wallet_id = recalc_jobs.wallet_id
					  AND p.state = 'pending'
					  AND p.id <> recalc_jobs.id
				) THEN 'completed'
				ELSE 'pending'
			END,
			not_before = $4,
			last_error = $2,
			lease_until = NULL,
			updated_at = $5
		WHERE id = $1
		RETURNING state`

	now := time.Now().UnixMilli()

	var state string
	err := q.pool.QueryRow(ctx, query, jobID, reason, q.maxAttempts, now+retryAfter.Milliseconds(), now).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if isUniqueViolation(err) {
			// A pending job for the wallet landed between the statement
			// snapshot and the write. This one is superseded.
			return q.supersede(ctx, jobID, reason, now)
		}
		return fmt.Errorf("fail recalc job: %w", err)
	}
	if state == domain.JobStateExhausted {
		return ErrExhausted
	}
	return nil
}

func (q *PostgresQueue) supersede(ctx context.Context, jobID, reason string, nowMs int64) error {
	query := `
		UPDATE recalc_jobs
		SET state = 'completed', last_error = $2, lease_until = NULL, updated_at = $3
		WHERE id = $1`

	if _, err := q.pool.Exec(ctx, query, jobID, reason, nowMs); err != nil {
		return fmt.Errorf("supersede recalc job: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.RecalcJob, error) {
	var job domain.RecalcJob
	err := row.Scan(
		&job.ID,
		&job.WalletID,
		&job.State,
		&job.Attempts,
		&job.NotBefore,
		&job.LeaseUntil,
		&job.LastError,
		&job.EnqueuedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
