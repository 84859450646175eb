package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// Memory is an in-process event log with the same sequencing and hash chaining as
// the SQLite store, minus signatures.
type Memory struct {
	mu       sync.Mutex
	registry *event.Registry
	streams  map[string][]event.Event
}

// NewMemory returns an empty in-memory journal validating events with registry.
func NewMemory(registry *event.Registry) *Memory {
	return &Memory{registry: registry, streams: make(map[string][]event.Event)}
}

// Append appends a single event at the end of its stream, whatever its head is.
func (m *Memory) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	if m.registry != nil {
		validated, err := m.registry.ValidateForAppend(evt)
		if err != nil {
			return event.Event{}, err
		}
		evt = validated
	}
	for {
		seq, err := m.LastSeq(ctx, evt.AggregateType, evt.AggregateID)
		if err != nil {
			return event.Event{}, err
		}
		stored, err := m.BatchAppend(ctx, seq, []event.Event{evt})
		if errors.Is(err, ErrConcurrencyConflict) {
			continue
		}
		if err != nil {
			return event.Event{}, err
		}
		return stored[0], nil
	}
}

// BatchAppend appends events atomically if the stream is still at expectedSeq.
func (m *Memory) BatchAppend(ctx context.Context, expectedSeq uint64, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	validated := make([]event.Event, len(events))
	for i, evt := range events {
		if m.registry != nil {
			v, err := m.registry.ValidateForAppend(evt)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			evt = v
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		validated[i] = evt
	}
	aggregateType, aggregateID, err := CheckBatch(validated)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := event.StreamKey(aggregateType, aggregateID)
	stream := m.streams[key]
	if uint64(len(stream)) != expectedSeq {
		return nil, fmt.Errorf("%w: %s at %d, expected %d", ErrConcurrencyConflict, key, len(stream), expectedSeq)
	}
	prevHash := ""
	if len(stream) > 0 {
		prevHash = stream[len(stream)-1].ChainHash
	}
	stored := make([]event.Event, len(validated))
	for i, evt := range validated {
		evt.Seq = expectedSeq + uint64(i) + 1
		hash, err := event.EventHash(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d hash: %w", i, err)
		}
		evt.Hash = hash
		chainHash, err := event.ChainHash(evt, prevHash)
		if err != nil {
			return nil, fmt.Errorf("event %d chain hash: %w", i, err)
		}
		evt.PrevHash = prevHash
		evt.ChainHash = chainHash
		prevHash = chainHash
		stored[i] = evt
	}
	m.streams[key] = append(stream, stored...)
	return stored, nil
}

// ListEvents returns up to limit events of one stream after afterSeq.
func (m *Memory) ListEvents(ctx context.Context, aggregateType, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stream := m.streams[event.StreamKey(aggregateType, aggregateID)]
	if afterSeq >= uint64(len(stream)) {
		return nil, nil
	}
	page := stream[afterSeq:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return append([]event.Event(nil), page...), nil
}

// LastSeq returns the current head sequence of a stream.
func (m *Memory) LastSeq(ctx context.Context, aggregateType, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.streams[event.StreamKey(aggregateType, aggregateID)])), nil
}
