package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/replay"
)

// ErrSnapshotNotFound indicates no snapshot exists for a stream yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// StateSnapshotStore loads and saves encoded aggregate state keyed by stream.
type StateSnapshotStore interface {
	GetSnapshot(ctx context.Context, aggregateType, aggregateID string) (payload []byte, lastSeq uint64, err error)
	SaveSnapshot(ctx context.Context, aggregateType, aggregateID string, lastSeq uint64, payload []byte) error
}

// StateCodec converts aggregate state to and from snapshot bytes.
type StateCodec interface {
	Encode(state any) ([]byte, error)
	Decode(payload []byte) (any, error)
}

// JSONCodec encodes state values of type T as JSON.
type JSONCodec[T any] struct{}

// Encode marshals state as JSON.
func (JSONCodec[T]) Encode(state any) ([]byte, error) {
	return json.Marshal(state)
}

// Decode unmarshals payload into a T value.
func (JSONCodec[T]) Decode(payload []byte) (any, error) {
	var state T
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// ReplayStateLoader rebuilds state from the latest snapshot plus the events after it.
type ReplayStateLoader struct {
	Events       replay.EventStore
	Snapshots    StateSnapshotStore
	Codec        StateCodec
	Folder       replay.Applier
	StateFactory func() any
	Options      replay.Options
}

// Load replays a stream and returns its state and head sequence.
func (l ReplayStateLoader) Load(ctx context.Context, stream replay.Stream) (any, uint64, error) {
	if l.Events == nil {
		return nil, 0, replay.ErrEventStoreRequired
	}
	if l.Folder == nil {
		return nil, 0, replay.ErrApplierRequired
	}
	var state any
	options := l.Options
	if l.Snapshots != nil && l.Codec != nil {
		payload, snapshotSeq, err := l.Snapshots.GetSnapshot(ctx, stream.AggregateType, stream.AggregateID)
		switch {
		case err == nil:
			decoded, decodeErr := l.Codec.Decode(payload)
			if decodeErr == nil {
				state = decoded
				if snapshotSeq > options.AfterSeq {
					options.AfterSeq = snapshotSeq
				}
			}
		case !errors.Is(err, ErrSnapshotNotFound):
			return nil, 0, err
		}
	}
	if state == nil && l.StateFactory != nil {
		state = l.StateFactory()
	}
	result, err := replay.Replay(ctx, l.Events, l.Folder, stream, state, options)
	if err != nil {
		return nil, 0, err
	}
	return result.State, result.LastSeq, nil
}
