package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/engine"
)

// GetSnapshot returns the latest saved state for a stream.
func (s *Store) GetSnapshot(ctx context.Context, aggregateType, aggregateID string) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := s.configured(); err != nil {
		return nil, 0, err
	}
	var (
		payload []byte
		lastSeq int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT state_json, last_seq FROM snapshots WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggregateType,
		aggregateID,
	).Scan(&payload, &lastSeq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, engine.ErrSnapshotNotFound
		}
		return nil, 0, fmt.Errorf("get snapshot: %w", err)
	}
	return payload, uint64(lastSeq), nil
}

// SaveSnapshot stores state for a stream. An older snapshot never replaces a newer one.
func (s *Store) SaveSnapshot(ctx context.Context, aggregateType, aggregateID string, lastSeq uint64, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.configured(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (aggregate_type, aggregate_id, last_seq, state_json, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(aggregate_type, aggregate_id) DO UPDATE SET
    last_seq = excluded.last_seq,
    state_json = excluded.state_json,
    updated_at = excluded.updated_at
WHERE excluded.last_seq > snapshots.last_seq`,
		aggregateType,
		aggregateID,
		int64(lastSeq),
		payload,
		toMillis(s.clock()),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

var _ engine.StateSnapshotStore = (*Store)(nil)
