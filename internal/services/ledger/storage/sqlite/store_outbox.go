package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

const (
	outboxDeadLetterThreshold = 8
	outboxProcessingLease     = 2 * time.Minute
)

func (s *Store) enqueueOutbox(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	if !s.outboxEnabled {
		return nil
	}
	if s.eventRegistry != nil && !s.eventRegistry.ShouldRoute(evt.Type) {
		return nil
	}
	enqueuedAt := s.clock()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO event_outbox (
    aggregate_type, aggregate_id, seq, event_type, status, attempt_count, next_attempt_at, last_error, updated_at
) VALUES (?, ?, ?, ?, 'pending', 0, ?, '', ?)
ON CONFLICT(aggregate_type, aggregate_id, seq) DO NOTHING
`,
		evt.AggregateType,
		evt.AggregateID,
		int64(evt.Seq),
		string(evt.Type),
		toMillis(enqueuedAt),
		toMillis(enqueuedAt),
	); err != nil {
		return fmt.Errorf("enqueue event outbox: %w", err)
	}
	return nil
}

// ClaimOutboxDue leases up to limit due rows. A row is only eligible while no
// earlier row of the same stream is still outstanding, so each stream has at most
// one row in flight and is delivered in append order. Rows stuck in processing
// past the lease are reclaimed.
func (s *Store) ClaimOutboxDue(ctx context.Context, now time.Time, limit int) ([]storage.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	if now.IsZero() {
		now = s.clock()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim tx: %w", err)
	}
	defer tx.Rollback()

	staleBefore := now.Add(-outboxProcessingLease)
	rows, err := tx.QueryContext(ctx,
		`SELECT o.aggregate_type, o.aggregate_id, o.seq, o.event_type, o.attempt_count
		 FROM event_outbox o
		 WHERE (
			 (o.status IN ('pending', 'failed') AND o.next_attempt_at <= ?)
			 OR (o.status = 'processing' AND o.updated_at <= ?)
		 )
		 AND NOT EXISTS (
			 SELECT 1 FROM event_outbox earlier
			 WHERE earlier.aggregate_type = o.aggregate_type
			   AND earlier.aggregate_id = o.aggregate_id
			   AND earlier.seq < o.seq
		 )
		 ORDER BY o.next_attempt_at, o.seq
		 LIMIT ?`,
		toMillis(now),
		toMillis(staleBefore),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due outbox rows: %w", err)
	}

	candidates := make([]storage.OutboxEntry, 0, limit)
	for rows.Next() {
		var (
			entry     storage.OutboxEntry
			seq       int64
			eventType string
		)
		if err := rows.Scan(&entry.AggregateType, &entry.AggregateID, &seq, &eventType, &entry.AttemptCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due outbox row: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.EventType = event.Type(eventType)
		candidates = append(candidates, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate due outbox rows: %w", err)
	}
	rows.Close()

	claimed := make([]storage.OutboxEntry, 0, len(candidates))
	for _, candidate := range candidates {
		result, err := tx.ExecContext(ctx,
			`UPDATE event_outbox
			 SET status = 'processing', updated_at = ?
			 WHERE aggregate_type = ? AND aggregate_id = ? AND seq = ?
			   AND (
				(status IN ('pending', 'failed') AND next_attempt_at <= ?)
				OR (status = 'processing' AND updated_at <= ?)
			   )`,
			toMillis(now),
			candidate.AggregateType,
			candidate.AggregateID,
			int64(candidate.Seq),
			toMillis(now),
			toMillis(staleBefore),
		)
		if err != nil {
			return nil, fmt.Errorf("claim outbox row %s: %w", outboxRef(candidate), err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim outbox row rows affected %s: %w", outboxRef(candidate), err)
		}
		if affected == 1 {
			candidate.Status = storage.OutboxProcessing
			candidate.UpdatedAt = now
			claimed = append(claimed, candidate)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim tx: %w", err)
	}
	return claimed, nil
}

// CompleteOutboxEntry removes a delivered row.
func (s *Store) CompleteOutboxEntry(ctx context.Context, entry storage.OutboxEntry) error {
	if err := s.configured(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM event_outbox
		 WHERE aggregate_type = ? AND aggregate_id = ? AND seq = ? AND status = 'processing'`,
		entry.AggregateType,
		entry.AggregateID,
		int64(entry.Seq),
	)
	if err != nil {
		return fmt.Errorf("complete outbox row %s: %w", outboxRef(entry), err)
	}
	return ensureSingleRow(result, "complete outbox row "+outboxRef(entry), "deleted")
}

// MarkOutboxRetry records a failed delivery. The row is scheduled again with
// exponential backoff or moved to dead once it exhausts its attempts or when dead
// is set.
func (s *Store) MarkOutboxRetry(ctx context.Context, entry storage.OutboxEntry, now time.Time, lastError string, dead bool) (storage.OutboxStatus, error) {
	if err := s.configured(); err != nil {
		return "", err
	}
	if now.IsZero() {
		now = s.clock()
	}
	attempt := entry.AttemptCount + 1
	status := storage.OutboxFailed
	if dead || attempt >= outboxDeadLetterThreshold {
		status = storage.OutboxDead
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE event_outbox
		 SET status = ?,
		     attempt_count = ?,
		     next_attempt_at = ?,
		     last_error = ?,
		     updated_at = ?
		 WHERE aggregate_type = ? AND aggregate_id = ? AND seq = ? AND status = 'processing'`,
		string(status),
		attempt,
		toMillis(now.Add(outboxRetryBackoff(attempt))),
		lastError,
		toMillis(now),
		entry.AggregateType,
		entry.AggregateID,
		int64(entry.Seq),
	)
	if err != nil {
		return "", fmt.Errorf("mark outbox retry for row %s: %w", outboxRef(entry), err)
	}
	if err := ensureSingleRow(result, "mark outbox retry for row "+outboxRef(entry), "updated"); err != nil {
		return "", err
	}
	return status, nil
}

// GetOutboxSummary returns queue depth by status and the oldest retry-eligible row.
func (s *Store) GetOutboxSummary(ctx context.Context) (storage.OutboxSummary, error) {
	if err := ctx.Err(); err != nil {
		return storage.OutboxSummary{}, err
	}
	if err := s.configured(); err != nil {
		return storage.OutboxSummary{}, err
	}

	summary := storage.OutboxSummary{}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM event_outbox GROUP BY status`)
	if err != nil {
		return storage.OutboxSummary{}, fmt.Errorf("query outbox summary counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return storage.OutboxSummary{}, fmt.Errorf("scan outbox summary count: %w", err)
		}
		switch storage.OutboxStatus(status) {
		case storage.OutboxPending:
			summary.PendingCount = count
		case storage.OutboxProcessing:
			summary.ProcessingCount = count
		case storage.OutboxFailed:
			summary.FailedCount = count
		case storage.OutboxDead:
			summary.DeadCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return storage.OutboxSummary{}, fmt.Errorf("iterate outbox summary counts: %w", err)
	}

	var (
		aggregateType string
		aggregateID   string
		seq           int64
		nextAttempt   int64
	)
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT aggregate_type, aggregate_id, seq, next_attempt_at
		 FROM event_outbox
		 WHERE status IN ('pending', 'failed')
		 ORDER BY next_attempt_at ASC, seq ASC
		 LIMIT 1`,
	).Scan(&aggregateType, &aggregateID, &seq, &nextAttempt)
	if err == nil {
		summary.OldestStream = event.StreamKey(aggregateType, aggregateID)
		summary.OldestSeq = uint64(seq)
		summary.OldestPendingAt = fromMillis(nextAttempt)
		return summary, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return summary, nil
	}
	return storage.OutboxSummary{}, fmt.Errorf("query oldest pending outbox row: %w", err)
}

// ListOutboxEntries lists outbox rows, optionally filtered by status.
func (s *Store) ListOutboxEntries(ctx context.Context, status storage.OutboxStatus, limit int) ([]storage.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []storage.OutboxEntry{}, nil
	}
	normalized, err := normalizeOutboxStatus(status)
	if err != nil {
		return nil, err
	}

	query := `SELECT aggregate_type, aggregate_id, seq, event_type, status, attempt_count, next_attempt_at, last_error, updated_at
		 FROM event_outbox`
	args := []any{}
	if normalized != "" {
		query += ` WHERE status = ?`
		args = append(args, string(normalized))
	}
	query += ` ORDER BY next_attempt_at ASC, seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox rows: %w", err)
	}
	defer rows.Close()

	entries := make([]storage.OutboxEntry, 0, limit)
	for rows.Next() {
		var (
			entry       storage.OutboxEntry
			seq         int64
			eventType   string
			rowStatus   string
			nextAttempt int64
			updatedAt   int64
		)
		if err := rows.Scan(
			&entry.AggregateType,
			&entry.AggregateID,
			&seq,
			&eventType,
			&rowStatus,
			&entry.AttemptCount,
			&nextAttempt,
			&entry.LastError,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.EventType = event.Type(eventType)
		entry.Status = storage.OutboxStatus(rowStatus)
		entry.NextAttemptAt = fromMillis(nextAttempt)
		entry.UpdatedAt = fromMillis(updatedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return entries, nil
}

// RequeueDeadOutboxEntries moves up to limit dead rows back to pending in retry order.
func (s *Store) RequeueDeadOutboxEntries(ctx context.Context, limit int, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.configured(); err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, fmt.Errorf("outbox requeue limit must be greater than zero")
	}
	if now.IsZero() {
		now = s.clock()
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`WITH to_requeue AS (
			SELECT aggregate_type, aggregate_id, seq
			FROM event_outbox
			WHERE status = 'dead'
			ORDER BY next_attempt_at ASC, seq ASC
			LIMIT ?
		)
		UPDATE event_outbox
		SET status = 'pending',
		    attempt_count = 0,
		    next_attempt_at = ?,
		    last_error = '',
		    updated_at = ?
		WHERE status = 'dead'
		  AND EXISTS (
			  SELECT 1 FROM to_requeue
			  WHERE to_requeue.aggregate_type = event_outbox.aggregate_type
			    AND to_requeue.aggregate_id = event_outbox.aggregate_id
			    AND to_requeue.seq = event_outbox.seq
		  )`,
		limit,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue dead outbox rows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue dead outbox rows affected: %w", err)
	}
	return int(affected), nil
}

func normalizeOutboxStatus(status storage.OutboxStatus) (storage.OutboxStatus, error) {
	normalized := storage.OutboxStatus(strings.ToLower(strings.TrimSpace(string(status))))
	switch normalized {
	case "", storage.OutboxPending, storage.OutboxProcessing, storage.OutboxFailed, storage.OutboxDead:
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid outbox status %q", status)
	}
}

func outboxRetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if attempt > 20 {
		return 5 * time.Minute
	}
	backoff := time.Second << (attempt - 1)
	if backoff > 5*time.Minute {
		return 5 * time.Minute
	}
	return backoff
}

func outboxRef(entry storage.OutboxEntry) string {
	return fmt.Sprintf("%s@%d", event.StreamKey(entry.AggregateType, entry.AggregateID), entry.Seq)
}

func ensureSingleRow(result sql.Result, operation, verb string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected != 1 {
		return fmt.Errorf("%s: expected 1 row %s, got %d", operation, verb, affected)
	}
	return nil
}
