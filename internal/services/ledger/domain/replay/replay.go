// Package replay folds a stream's stored events back into aggregate state.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

const defaultPageSize = 200

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrApplierRequired indicates a missing applier.
	ErrApplierRequired = errors.New("applier is required")
	// ErrStreamRequired indicates a missing aggregate type or id.
	ErrStreamRequired = errors.New("aggregate type and id are required")
)

// EventStore lists events of one stream for replay.
type EventStore interface {
	ListEvents(ctx context.Context, aggregateType, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// Applier folds a domain event into state.
type Applier interface {
	Apply(state any, evt event.Event) (any, error)
}

// Stream addresses one aggregate instance.
type Stream struct {
	AggregateType string
	AggregateID   string
}

// Options configures replay behavior.
type Options struct {
	AfterSeq uint64
	UntilSeq uint64
	PageSize int
}

// Result captures replay outcomes.
type Result struct {
	State   any
	LastSeq uint64
	Applied int
}

// Replay applies the stream's events in order starting after options.AfterSeq.
func Replay(ctx context.Context, store EventStore, applier Applier, stream Stream, state any, options Options) (Result, error) {
	if store == nil {
		return Result{}, ErrEventStoreRequired
	}
	if applier == nil {
		return Result{}, ErrApplierRequired
	}
	stream.AggregateType = strings.TrimSpace(stream.AggregateType)
	stream.AggregateID = strings.TrimSpace(stream.AggregateID)
	if stream.AggregateType == "" || stream.AggregateID == "" {
		return Result{}, ErrStreamRequired
	}
	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result{State: state, LastSeq: options.AfterSeq}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, err := store.ListEvents(ctx, stream.AggregateType, stream.AggregateID, result.LastSeq, pageSize)
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return result, nil
			}
			expectedSeq := result.LastSeq + 1
			if evt.Seq != expectedSeq {
				return result, fmt.Errorf("event sequence gap: expected %d got %d", expectedSeq, evt.Seq)
			}
			nextState, err := applier.Apply(result.State, evt)
			if err != nil {
				return result, err
			}
			result.State = nextState
			result.LastSeq = evt.Seq
			result.Applied++
		}
		if len(events) < pageSize {
			return result, nil
		}
	}
}
