package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/journal"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const eventColumns = `aggregate_type, aggregate_id, seq, event_hash, prev_event_hash, chain_hash,
signature_key_id, event_signature, timestamp, event_type, actor_type, actor_id,
request_id, correlation_id, causation_id, payload_json`

// BatchAppend atomically appends events to one stream if its head is still at
// expectedSeq. Sequence numbers are allocated contiguously and chain hashes link
// each event to its predecessor, including the stream's previous head for the
// first item. Routed events are enqueued in the outbox in the same transaction.
func (s *Store) BatchAppend(ctx context.Context, expectedSeq uint64, events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, err
	}
	if s.eventRegistry == nil {
		return nil, fmt.Errorf("event registry is required")
	}
	if s.keyring == nil {
		return nil, fmt.Errorf("event integrity keyring is required")
	}

	validated := make([]event.Event, len(events))
	for i, evt := range events {
		v, err := s.eventRegistry.ValidateForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if v.Timestamp.IsZero() {
			v.Timestamp = s.clock()
		}
		v.Timestamp = v.Timestamp.UTC().Truncate(time.Millisecond)
		validated[i] = v
	}
	aggregateType, aggregateID, err := journal.CheckBatch(validated)
	if err != nil {
		return nil, err
	}
	streamKey := event.StreamKey(aggregateType, aggregateID)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var head uint64
	var prevChainHash string
	err = tx.QueryRowContext(ctx,
		`SELECT seq, chain_hash FROM events
		 WHERE aggregate_type = ? AND aggregate_id = ?
		 ORDER BY seq DESC LIMIT 1`,
		aggregateType, aggregateID,
	).Scan(&head, &prevChainHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load stream head %s: %w", streamKey, err)
	}
	if head != expectedSeq {
		return nil, fmt.Errorf("%w: %s at %d, expected %d", journal.ErrConcurrencyConflict, streamKey, head, expectedSeq)
	}

	stored := make([]event.Event, len(validated))
	for i, evt := range validated {
		evt.Seq = head + uint64(i) + 1

		evt, err = s.keyring.Seal(streamKey, evt, prevChainHash)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.AggregateType,
			evt.AggregateID,
			int64(evt.Seq),
			evt.Hash,
			evt.PrevHash,
			evt.ChainHash,
			evt.SignatureKeyID,
			evt.Signature,
			toMillis(evt.Timestamp),
			string(evt.Type),
			string(evt.ActorType),
			evt.ActorID,
			evt.RequestID,
			evt.CorrelationID,
			evt.CausationID,
			evt.PayloadJSON,
		); err != nil {
			if isConstraintError(err) {
				return nil, fmt.Errorf("%w: %s seq %d already stored", journal.ErrConcurrencyConflict, streamKey, evt.Seq)
			}
			return nil, fmt.Errorf("append event %d: %w", i, err)
		}
		if err := s.enqueueOutbox(ctx, tx, evt); err != nil {
			return nil, err
		}

		prevChainHash = evt.ChainHash
		stored[i] = evt
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// ListEvents returns up to limit events of one stream after afterSeq, in order.
func (s *Store) ListEvents(ctx context.Context, aggregateType, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE aggregate_type = ? AND aggregate_id = ? AND seq > ?
		 ORDER BY seq
		 LIMIT ?`,
		aggregateType, aggregateID, int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", event.StreamKey(aggregateType, aggregateID), err)
	}
	defer rows.Close()

	events := make([]event.Event, 0, limit)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetEventBySeq returns one stored event.
func (s *Store) GetEventBySeq(ctx context.Context, aggregateType, aggregateID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := s.configured(); err != nil {
		return event.Event{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE aggregate_type = ? AND aggregate_id = ? AND seq = ?`,
		aggregateType, aggregateID, int64(seq),
	)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, storage.ErrNotFound
	}
	return evt, err
}

// GetEventByHash returns the event with the given content hash.
func (s *Store) GetEventByHash(ctx context.Context, hash string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := s.configured(); err != nil {
		return event.Event{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_hash = ?`, strings.TrimSpace(hash))
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, storage.ErrNotFound
	}
	return evt, err
}

// LastSeq returns the head sequence of a stream, zero when it has no events.
func (s *Store) LastSeq(ctx context.Context, aggregateType, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.configured(); err != nil {
		return 0, err
	}
	var seq int64
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggregateType, aggregateID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq %s: %w", event.StreamKey(aggregateType, aggregateID), err)
	}
	return uint64(seq), nil
}

// ListOpenStreams returns the ids of aggregateType streams whose latest event is
// not one of terminalTypes, oldest stream first.
func (s *Store) ListOpenStreams(ctx context.Context, aggregateType string, terminalTypes ...event.Type) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT e.aggregate_id, e.event_type FROM events e
		 JOIN (
			SELECT aggregate_id, MAX(seq) AS head FROM events
			WHERE aggregate_type = ?
			GROUP BY aggregate_id
		 ) h ON h.aggregate_id = e.aggregate_id AND h.head = e.seq
		 WHERE e.aggregate_type = ?
		 ORDER BY e.timestamp, e.aggregate_id`,
		aggregateType, aggregateType,
	)
	if err != nil {
		return nil, fmt.Errorf("list open %s streams: %w", aggregateType, err)
	}
	defer rows.Close()

	terminal := make(map[event.Type]struct{}, len(terminalTypes))
	for _, t := range terminalTypes {
		terminal[t] = struct{}{}
	}
	var ids []string
	for rows.Next() {
		var id, eventType string
		if err := rows.Scan(&id, &eventType); err != nil {
			return nil, fmt.Errorf("scan open stream: %w", err)
		}
		if _, done := terminal[event.Type(eventType)]; done {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open streams: %w", err)
	}
	return ids, nil
}

// VerifyEventIntegrity validates the hash chain and signatures of every stream.
func (s *Store) VerifyEventIntegrity(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.configured(); err != nil {
		return err
	}
	if s.keyring == nil {
		return fmt.Errorf("event integrity keyring is required")
	}

	streams, err := s.listStreams(ctx)
	if err != nil {
		return err
	}
	for _, stream := range streams {
		if err := s.verifyStreamEvents(ctx, stream[0], stream[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) listStreams(ctx context.Context) ([][2]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT DISTINCT aggregate_type, aggregate_id FROM events ORDER BY aggregate_type, aggregate_id")
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var streams [][2]string
	for rows.Next() {
		var aggregateType, aggregateID string
		if err := rows.Scan(&aggregateType, &aggregateID); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, [2]string{aggregateType, aggregateID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return streams, nil
}

func (s *Store) verifyStreamEvents(ctx context.Context, aggregateType, aggregateID string) error {
	streamKey := event.StreamKey(aggregateType, aggregateID)
	var lastSeq uint64
	prevChainHash := ""
	for {
		events, err := s.ListEvents(ctx, aggregateType, aggregateID, lastSeq, 200)
		if err != nil {
			return fmt.Errorf("list events stream=%s: %w", streamKey, err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			if evt.Seq != lastSeq+1 {
				return fmt.Errorf("event sequence gap stream=%s expected=%d got=%d", streamKey, lastSeq+1, evt.Seq)
			}
			if err := s.keyring.Check(streamKey, evt, prevChainHash); err != nil {
				return err
			}

			prevChainHash = evt.ChainHash
			lastSeq = evt.Seq
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		timestamp int64
		eventType string
		actorType string
	)
	if err := row.Scan(
		&evt.AggregateType,
		&evt.AggregateID,
		&seq,
		&evt.Hash,
		&evt.PrevHash,
		&evt.ChainHash,
		&evt.SignatureKeyID,
		&evt.Signature,
		&timestamp,
		&eventType,
		&actorType,
		&evt.ActorID,
		&evt.RequestID,
		&evt.CorrelationID,
		&evt.CausationID,
		&evt.PayloadJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, err
		}
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Timestamp = fromMillis(timestamp)
	evt.Type = event.Type(eventType)
	evt.ActorType = event.ActorType(actorType)
	return evt, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
