package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

// RecordAttempt stores one reactor delivery outcome.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.configured(); err != nil {
		return err
	}
	if strings.TrimSpace(attempt.EventID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(attempt.Consumer) == "" {
		return fmt.Errorf("consumer is required")
	}
	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO router_attempts (
    event_id, event_type, consumer, outcome, attempt_count, last_error, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(attempt.EventID),
		strings.TrimSpace(attempt.EventType),
		strings.TrimSpace(attempt.Consumer),
		strings.TrimSpace(attempt.Outcome),
		attempt.AttemptCount,
		strings.TrimSpace(attempt.LastError),
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the most recent delivery attempts first.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, event_id, event_type, consumer, outcome, attempt_count, last_error, created_at
FROM router_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]storage.AttemptRecord, 0, limit)
	for rows.Next() {
		var (
			record    storage.AttemptRecord
			createdAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.EventType,
			&record.Consumer,
			&record.Outcome,
			&record.AttemptCount,
			&record.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		attempts = append(attempts, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}
