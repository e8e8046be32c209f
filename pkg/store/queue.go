package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// ErrNoEntriesAvailable is returned by ReserveNext when no queue entry is
// currently claimable.
var ErrNoEntriesAvailable = errors.New("store: no entries available")

// VisibilityTimeout is how long a reservation holds a queue entry before
// it becomes re-claimable by another worker (spec §4.3).
const VisibilityTimeout = 5 * time.Minute

// ReserveNext atomically claims the next claimable Queue Entry — one
// whose available_at has passed and which is either unreserved or whose
// reservation has expired — using FOR UPDATE SKIP LOCKED so concurrent
// workers never double-claim the same row (spec §4.3, §4.4).
func (c *Client) ReserveNext(ctx context.Context, workerID string, now time.Time) (*models.QueueEntry, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var entry models.QueueEntry
	var reservedUntil sql.NullTime

	row := tx.QueryRowContext(ctx, `
		SELECT job_id, attempts, reserved_until, available_at
		FROM queue_entries
		WHERE available_at <= $1
		  AND (reserved_until IS NULL OR reserved_until <= $1)
		ORDER BY available_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, now)

	if err := row.Scan(&entry.JobID, &entry.Attempts, &reservedUntil, &entry.AvailableAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEntriesAvailable
		}
		return nil, fmt.Errorf("query queue entry: %w", err)
	}

	newReservedUntil := now.Add(VisibilityTimeout)
	entry.Attempts++

	_, err = tx.ExecContext(ctx, `
		UPDATE queue_entries SET attempts = $1, reserved_until = $2, worker_id = $3
		WHERE job_id = $4`,
		entry.Attempts, newReservedUntil, workerID, entry.JobID,
	)
	if err != nil {
		return nil, fmt.Errorf("claim queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	entry.ReservedUntil = &newReservedUntil
	return &entry, nil
}

// Requeue clears a reservation and pushes available_at out by backoff,
// used when a pipeline attempt fails Transient and attempts < max_tries
// (spec §4.4 step 4).
func (c *Client) Requeue(ctx context.Context, jobID string, backoff time.Duration, now time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET reserved_until = NULL, available_at = $1
		WHERE job_id = $2`,
		now.Add(backoff), jobID,
	)
	if err != nil {
		return fmt.Errorf("requeue %s: %w", jobID, err)
	}
	return nil
}

// QueueDepth returns the number of queue entries currently awaiting
// claim (available_at <= now and unreserved), used for health reporting.
func (c *Client) QueueDepth(ctx context.Context, now time.Time) (int, error) {
	var depth int
	row := c.db.QueryRowContext(ctx, `
		SELECT count(*) FROM queue_entries
		WHERE available_at <= $1 AND (reserved_until IS NULL OR reserved_until <= $1)`, now)
	if err := row.Scan(&depth); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// FailedRecentCount returns how many requests finalized as failed within
// the trailing window, used for queue health reporting (spec §6 "failed <
// 10"). A long-lived total would only ever grow, so health looks at a
// recent window rather than all-time failures.
func (c *Client) FailedRecentCount(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	var count int
	row := c.db.QueryRowContext(ctx, `
		SELECT count(*) FROM applications
		WHERE status = $1 AND decided_at >= $2`,
		models.StatusFailed, now.Add(-window),
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed recent count: %w", err)
	}
	return count, nil
}

// RecordIdentifierSeen records one occurrence of a hashed identifier
// (phone/email/VIN) for reuse-count feature extraction (spec §4.5).
func (c *Client) RecordIdentifierSeen(ctx context.Context, requestID, kind, hash string, now time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO identifier_reuse (request_id, kind, hash, seen_at)
		VALUES ($1, $2, $3, $4)`,
		requestID, kind, hash, now,
	)
	if err != nil {
		return fmt.Errorf("record identifier reuse: %w", err)
	}
	return nil
}

// ReuseCount returns how many prior requests (excluding requestID) saw
// the same hashed identifier within the trailing 30-day window (spec
// §4.5 "query the Job Store for prior requests in a 30-day window keyed
// by hashed identifier").
func (c *Client) ReuseCount(ctx context.Context, requestID, kind, hash string, now time.Time) (int, error) {
	var count int
	row := c.db.QueryRowContext(ctx, `
		SELECT count(DISTINCT request_id) FROM identifier_reuse
		WHERE kind = $1 AND hash = $2 AND request_id != $3 AND seen_at >= $4`,
		kind, hash, requestID, now.Add(-30*24*time.Hour),
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("reuse count: %w", err)
	}
	return count, nil
}

// DealerVolume24h returns how many applications a dealer has submitted
// in the trailing 24 hours (spec §4.5 dealer_volume_24h feature).
func (c *Client) DealerVolume24h(ctx context.Context, dealerID string, now time.Time) (int, error) {
	var count int
	row := c.db.QueryRowContext(ctx, `
		SELECT count(*) FROM applications
		WHERE dealer_id = $1 AND received_at >= $2`,
		dealerID, now.Add(-24*time.Hour),
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("dealer volume: %w", err)
	}
	return count, nil
}

// DealerFraudRate returns the fraction of a dealer's decided applications
// in the trailing 90 days that resolved to decline, used as the basis
// for the dealer_fraud_percentile feature. Returns (0, false) when the
// dealer has no decided history yet, so the caller can fall back to a
// neutral default instead of dividing by zero.
func (c *Client) DealerFraudRate(ctx context.Context, dealerID string, now time.Time) (rate float64, known bool, err error) {
	var total, declined int
	row := c.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE d.final_decision = 'decline')
		FROM applications a
		JOIN decisions d ON d.request_id = a.request_id
		WHERE a.dealer_id = $1 AND a.received_at >= $2`,
		dealerID, now.Add(-90*24*time.Hour),
	)
	if err := row.Scan(&total, &declined); err != nil {
		return 0, false, fmt.Errorf("dealer fraud rate: %w", err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(declined) / float64(total), true, nil
}
