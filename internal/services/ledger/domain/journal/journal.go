// Package journal defines the append contract of the event log and an in-memory
// implementation used by tests and single-process tooling.
package journal

import (
	"errors"
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

var (
	// ErrConcurrencyConflict indicates the stream advanced past the expected sequence.
	ErrConcurrencyConflict = errors.New("stream advanced concurrently")
	// ErrMixedStreams indicates a batch addressed to more than one stream.
	ErrMixedStreams = errors.New("batch must target a single stream")
)

// CheckBatch verifies that all events in a batch belong to the same stream and
// returns that stream's aggregate type and id.
func CheckBatch(events []event.Event) (string, string, error) {
	if len(events) == 0 {
		return "", "", fmt.Errorf("batch is empty")
	}
	aggregateType := events[0].AggregateType
	aggregateID := events[0].AggregateID
	for i, evt := range events[1:] {
		if evt.AggregateType != aggregateType || evt.AggregateID != aggregateID {
			return "", "", fmt.Errorf("event %d: %w", i+1, ErrMixedStreams)
		}
	}
	return aggregateType, aggregateID, nil
}
