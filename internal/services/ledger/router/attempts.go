package router

import (
	"context"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

// Outcome is the result of one reactor delivery.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetry     Outcome = "retry"
	OutcomeDead      Outcome = "dead"
)

// Attempt describes one reactor delivery.
type Attempt struct {
	EventID      string
	EventType    string
	Consumer     string
	Outcome      Outcome
	AttemptCount int
	Error        string
	CreatedAt    time.Time
}

// AttemptRecorder persists delivery attempts for operators.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

type attemptStoreRecorder struct {
	store storage.AttemptStore
}

// NewAttemptStoreRecorder records attempts in an attempt store.
func NewAttemptStoreRecorder(store storage.AttemptStore) AttemptRecorder {
	return &attemptStoreRecorder{store: store}
}

func (r *attemptStoreRecorder) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if r == nil || r.store == nil {
		return nil
	}
	consumer := strings.TrimSpace(attempt.Consumer)
	if consumer == "" {
		consumer = defaultConsumer
	}
	return r.store.RecordAttempt(ctx, storage.AttemptRecord{
		EventID:      attempt.EventID,
		EventType:    attempt.EventType,
		Consumer:     consumer,
		Outcome:      canonicalOutcomeValue(attempt.Outcome),
		AttemptCount: attempt.AttemptCount,
		LastError:    attempt.Error,
		CreatedAt:    attempt.CreatedAt,
	})
}

func canonicalOutcomeValue(outcome Outcome) string {
	switch outcome {
	case OutcomeSucceeded, OutcomeRetry, OutcomeDead:
		return string(outcome)
	default:
		return "unknown"
	}
}
