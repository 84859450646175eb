package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

const timerFiringLease = time.Minute

// ScheduleTimer upserts a named timer. Rescheduling an existing name replaces its
// fire time and command, and resets its attempts.
func (s *Store) ScheduleTimer(ctx context.Context, timer storage.Timer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.configured(); err != nil {
		return err
	}
	name := strings.TrimSpace(timer.Name)
	if name == "" {
		return fmt.Errorf("timer name is required")
	}
	if strings.TrimSpace(timer.AggregateType) == "" || strings.TrimSpace(timer.AggregateID) == "" {
		return fmt.Errorf("timer %s: aggregate type and id are required", name)
	}
	if strings.TrimSpace(timer.CommandType) == "" {
		return fmt.Errorf("timer %s: command type is required", name)
	}
	if timer.FireAt.IsZero() {
		return fmt.Errorf("timer %s: fire time is required", name)
	}
	payload := timer.PayloadJSON
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	now := s.clock()
	createdAt := timer.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO timers (
    name, fire_at, aggregate_type, aggregate_id, command_type, payload_json,
    status, attempt_count, last_error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, 'scheduled', 0, '', ?, ?)
ON CONFLICT(name) DO UPDATE SET
    fire_at = excluded.fire_at,
    aggregate_type = excluded.aggregate_type,
    aggregate_id = excluded.aggregate_id,
    command_type = excluded.command_type,
    payload_json = excluded.payload_json,
    status = 'scheduled',
    attempt_count = 0,
    last_error = '',
    updated_at = excluded.updated_at
`,
		name,
		toMillis(timer.FireAt),
		timer.AggregateType,
		timer.AggregateID,
		timer.CommandType,
		payload,
		toMillis(createdAt),
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("schedule timer %s: %w", name, err)
	}
	return nil
}

// CancelTimer deletes a timer by name and reports whether one existed.
func (s *Store) CancelTimer(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.configured(); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM timers WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return false, fmt.Errorf("cancel timer %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel timer %s rows affected: %w", name, err)
	}
	return affected > 0, nil
}

// GetTimer returns one timer by name.
func (s *Store) GetTimer(ctx context.Context, name string) (storage.Timer, error) {
	if err := ctx.Err(); err != nil {
		return storage.Timer{}, err
	}
	if err := s.configured(); err != nil {
		return storage.Timer{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT name, fire_at, aggregate_type, aggregate_id, command_type, payload_json, attempt_count, last_error, created_at
FROM timers WHERE name = ?`, strings.TrimSpace(name))
	timer, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Timer{}, storage.ErrNotFound
		}
		return storage.Timer{}, fmt.Errorf("get timer %s: %w", name, err)
	}
	return timer, nil
}

// ClaimDueTimers marks up to limit due timers as firing and returns them. Timers
// left firing past the lease by a crashed worker become claimable again.
func (s *Store) ClaimDueTimers(ctx context.Context, now time.Time, limit int) ([]storage.Timer, error) {
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
	staleBefore := now.Add(-timerFiringLease)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin timer claim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT name, fire_at, aggregate_type, aggregate_id, command_type, payload_json, attempt_count, last_error, created_at
FROM timers
WHERE (status = 'scheduled' AND fire_at <= ?)
   OR (status = 'firing' AND updated_at <= ?)
ORDER BY fire_at ASC, name ASC
LIMIT ?`,
		toMillis(now),
		toMillis(staleBefore),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due timers: %w", err)
	}
	due := make([]storage.Timer, 0, limit)
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due timer: %w", err)
		}
		due = append(due, timer)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate due timers: %w", err)
	}
	rows.Close()

	claimed := make([]storage.Timer, 0, len(due))
	for _, timer := range due {
		result, err := tx.ExecContext(ctx, `
UPDATE timers SET status = 'firing', updated_at = ?
WHERE name = ?
  AND ((status = 'scheduled' AND fire_at <= ?) OR (status = 'firing' AND updated_at <= ?))`,
			toMillis(now),
			timer.Name,
			toMillis(now),
			toMillis(staleBefore),
		)
		if err != nil {
			return nil, fmt.Errorf("claim timer %s: %w", timer.Name, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim timer %s rows affected: %w", timer.Name, err)
		}
		if affected == 1 {
			claimed = append(claimed, timer)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit timer claim tx: %w", err)
	}
	return claimed, nil
}

// CompleteTimer deletes a fired timer. Completing a timer that was cancelled or
// rescheduled in the meantime is a no-op.
func (s *Store) CompleteTimer(ctx context.Context, name string) error {
	if err := s.configured(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM timers WHERE name = ? AND status = 'firing'`, name); err != nil {
		return fmt.Errorf("complete timer %s: %w", name, err)
	}
	return nil
}

// RetryTimer returns a claimed timer to scheduled with backoff after a failed fire.
func (s *Store) RetryTimer(ctx context.Context, timer storage.Timer, now time.Time, lastError string) error {
	if err := s.configured(); err != nil {
		return err
	}
	if now.IsZero() {
		now = s.clock()
	}
	attempt := timer.AttemptCount + 1
	if _, err := s.sqlDB.ExecContext(ctx, `
UPDATE timers
SET status = 'scheduled', attempt_count = ?, fire_at = ?, last_error = ?, updated_at = ?
WHERE name = ? AND status = 'firing'`,
		attempt,
		toMillis(now.Add(outboxRetryBackoff(attempt))),
		lastError,
		toMillis(now),
		timer.Name,
	); err != nil {
		return fmt.Errorf("retry timer %s: %w", timer.Name, err)
	}
	return nil
}

// RecoverTimers resets timers left firing by a previous process so they are
// picked up by the next sweep. Overdue timers keep their original fire time and
// fire immediately.
func (s *Store) RecoverTimers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.configured(); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE timers SET status = 'scheduled', updated_at = ? WHERE status = 'firing'`,
		toMillis(s.clock()),
	)
	if err != nil {
		return 0, fmt.Errorf("recover timers: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover timers rows affected: %w", err)
	}
	return int(affected), nil
}

func scanTimer(row rowScanner) (storage.Timer, error) {
	var (
		timer     storage.Timer
		fireAt    int64
		createdAt int64
	)
	if err := row.Scan(
		&timer.Name,
		&fireAt,
		&timer.AggregateType,
		&timer.AggregateID,
		&timer.CommandType,
		&timer.PayloadJSON,
		&timer.AttemptCount,
		&timer.LastError,
		&createdAt,
	); err != nil {
		return storage.Timer{}, err
	}
	timer.FireAt = fromMillis(fireAt)
	timer.CreatedAt = fromMillis(createdAt)
	return timer, nil
}
