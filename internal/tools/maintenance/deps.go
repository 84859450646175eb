package maintenance

import (
	"context"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

// ledgerStore is the subset of the ledger SQLite store maintenance reads and repairs.
type ledgerStore interface {
	integrityVerifier
	outboxInspector
	outboxRequeuer
	attemptLister
	openStreamLister
	Close() error
}

type integrityVerifier interface {
	VerifyEventIntegrity(ctx context.Context) error
}

type outboxInspector interface {
	GetOutboxSummary(ctx context.Context) (storage.OutboxSummary, error)
	ListOutboxEntries(ctx context.Context, status storage.OutboxStatus, limit int) ([]storage.OutboxEntry, error)
}

type outboxRequeuer interface {
	RequeueDeadOutboxEntries(ctx context.Context, limit int, now time.Time) (int, error)
}

type attemptLister interface {
	ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error)
}

type openStreamLister interface {
	ListOpenStreams(ctx context.Context, aggregateType string, terminalTypes ...event.Type) ([]string, error)
}
