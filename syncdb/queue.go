package syncdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QueueStatus is the lifecycle state of a retry-queue entry.
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueFailed     QueueStatus = "FAILED"
)

// DefaultMaxRetries bounds replay attempts per queue entry.
const DefaultMaxRetries = 5

// QueueEntry is one durable failed-creation payload awaiting replay.
type QueueEntry struct {
	ID            int64
	EntityType    string
	Operation     string
	Payload       string // serialized create request body (single item)
	MobileUID     string
	Status        QueueStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	CreatedAt     time.Time
	LastAttemptAt *time.Time
	NextAttemptAt *time.Time
}

// Exhausted reports whether the entry has used up its retry budget.
func (e *QueueEntry) Exhausted() bool { return e.RetryCount >= e.MaxRetries }

// QueueStore persists the durable retry queue in the _sync_queue table.
type QueueStore struct {
	db *sql.DB
}

// NewQueueStore returns a queue accessor over an initialized database.
func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

// Enqueue appends a new PENDING entry and returns its ID. Idempotency is by
// mobile UID: the caller must not double-enqueue the same logical creation.
func (q *QueueStore) Enqueue(ctx context.Context, entityType, mobileUID, payload string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO _sync_queue (entity_type, operation, payload, mobile_uid, status,
			retry_count, max_retries, created_at)
		VALUES (?, 'CREATE', ?, ?, 'PENDING', 0, ?, ?)
	`, entityType, payload, mobileUID, DefaultMaxRetries, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s creation: %w", entityType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue entry id: %w", err)
	}
	return id, nil
}

// Pending returns all PENDING entries ordered by age (oldest first).
func (q *QueueStore) Pending(ctx context.Context) ([]QueueEntry, error) {
	return q.query(ctx, `SELECT `+queueColumns+` FROM _sync_queue
		WHERE status = 'PENDING' ORDER BY created_at, id`)
}

// All returns every entry ordered by age, for observability surfaces.
func (q *QueueStore) All(ctx context.Context) ([]QueueEntry, error) {
	return q.query(ctx, `SELECT `+queueColumns+` FROM _sync_queue ORDER BY created_at, id`)
}

// CountByStatus returns the number of entries in the given status.
func (q *QueueStore) CountByStatus(ctx context.Context, status QueueStatus) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _sync_queue WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

// MarkProcessing transitions an entry to PROCESSING before a replay attempt.
func (q *QueueStore) MarkProcessing(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE _sync_queue SET status = 'PROCESSING' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark queue entry processing: %w", err)
	}
	return nil
}

// MarkFailed records a failed replay attempt: status FAILED, incremented
// retry count, the error and the backoff-computed next attempt time.
func (q *QueueStore) MarkFailed(ctx context.Context, id int64, lastError string, attemptAt, nextAttemptAt time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE _sync_queue
		SET status = 'FAILED',
			retry_count = retry_count + 1,
			last_error = ?,
			last_attempt_at = ?,
			next_attempt_at = ?
		WHERE id = ?
	`, lastError, attemptAt.UTC().Format(timeLayout), nextAttemptAt.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry failed: %w", err)
	}
	return nil
}

// Delete removes an entry after a successful replay.
func (q *QueueStore) Delete(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM _sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// DeleteByMobileUID removes entries for a record that was confirmed through a
// path other than queue replay.
func (q *QueueStore) DeleteByMobileUID(ctx context.Context, mobileUID string) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM _sync_queue WHERE mobile_uid = ?`, mobileUID); err != nil {
		return fmt.Errorf("failed to delete queue entries for mobile uid: %w", err)
	}
	return nil
}

// Requeue flips FAILED entries whose backoff has elapsed and whose retry
// budget is not exhausted back to PENDING. Returns the number promoted.
func (q *QueueStore) Requeue(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE _sync_queue
		SET status = 'PENDING'
		WHERE status = 'FAILED'
		  AND retry_count < max_retries
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	`, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue eligible entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued entries: %w", err)
	}
	return n, nil
}

const queueColumns = `id, entity_type, operation, payload, mobile_uid, status,
	retry_count, max_retries, last_error, created_at, last_attempt_at, next_attempt_at`

func (q *QueueStore) query(ctx context.Context, query string, args ...any) ([]QueueEntry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var status, createdAt string
		var lastErr, lastAttempt, nextAttempt sql.NullString
		if err := rows.Scan(&e.ID, &e.EntityType, &e.Operation, &e.Payload, &e.MobileUID,
			&status, &e.RetryCount, &e.MaxRetries, &lastErr, &createdAt,
			&lastAttempt, &nextAttempt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.Status = QueueStatus(status)
		e.LastError = lastErr.String
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			e.CreatedAt = t
		}
		if lastAttempt.Valid {
			if t, err := time.Parse(timeLayout, lastAttempt.String); err == nil {
				e.LastAttemptAt = &t
			}
		}
		if nextAttempt.Valid {
			if t, err := time.Parse(timeLayout, nextAttempt.String); err == nil {
				e.NextAttemptAt = &t
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}
	return entries, nil
}
