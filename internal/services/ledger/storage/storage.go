package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// EventStore is the durable, per-stream ordered event log.
type EventStore interface {
	BatchAppend(ctx context.Context, expectedSeq uint64, events []event.Event) ([]event.Event, error)
	ListEvents(ctx context.Context, aggregateType, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
	GetEventBySeq(ctx context.Context, aggregateType, aggregateID string, seq uint64) (event.Event, error)
	LastSeq(ctx context.Context, aggregateType, aggregateID string) (uint64, error)
}

// OutboxStatus is the delivery state of one outbox row.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxFailed     OutboxStatus = "failed"
	OutboxDead       OutboxStatus = "dead"
)

// OutboxEntry describes one routed event awaiting delivery.
type OutboxEntry struct {
	AggregateType string
	AggregateID   string
	Seq           uint64
	EventType     event.Type
	Status        OutboxStatus
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	UpdatedAt     time.Time
}

// OutboxSummary reports outbox depth and the oldest retry-eligible row.
type OutboxSummary struct {
	PendingCount    int
	ProcessingCount int
	FailedCount     int
	DeadCount       int
	OldestStream    string
	OldestSeq       uint64
	OldestPendingAt time.Time
}

// OutboxStore leases routed events to the router.
type OutboxStore interface {
	ClaimOutboxDue(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error)
	CompleteOutboxEntry(ctx context.Context, entry OutboxEntry) error
	MarkOutboxRetry(ctx context.Context, entry OutboxEntry, now time.Time, lastError string, dead bool) (OutboxStatus, error)
	GetOutboxSummary(ctx context.Context) (OutboxSummary, error)
	ListOutboxEntries(ctx context.Context, status OutboxStatus, limit int) ([]OutboxEntry, error)
	RequeueDeadOutboxEntries(ctx context.Context, limit int, now time.Time) (int, error)
}

// Timer is a persisted one-shot callback that issues a command when it fires.
type Timer struct {
	Name          string
	FireAt        time.Time
	AggregateType string
	AggregateID   string
	CommandType   string
	PayloadJSON   []byte
	AttemptCount  int
	LastError     string
	CreatedAt     time.Time
}

// TimerStore persists durable timers.
type TimerStore interface {
	ScheduleTimer(ctx context.Context, timer Timer) error
	CancelTimer(ctx context.Context, name string) (bool, error)
	GetTimer(ctx context.Context, name string) (Timer, error)
	ClaimDueTimers(ctx context.Context, now time.Time, limit int) ([]Timer, error)
	CompleteTimer(ctx context.Context, name string) error
	RetryTimer(ctx context.Context, timer Timer, now time.Time, lastError string) error
	RecoverTimers(ctx context.Context) (int, error)
}

// AttemptRecord is one durable reactor delivery outcome.
type AttemptRecord struct {
	ID           int64
	EventID      string
	EventType    string
	Consumer     string
	Outcome      string
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists reactor delivery attempts.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// WalletBalance is one row of the settled balance read model.
type WalletBalance struct {
	WalletID  string
	Balance   int64
	LastSeq   uint64
	UpdatedAt time.Time
}

// BalanceStore persists the settled wallet balance read model.
type BalanceStore interface {
	CreateWalletBalance(ctx context.Context, walletID string, seq uint64, at time.Time) error
	AdjustWalletBalance(ctx context.Context, walletID string, delta int64, seq uint64, at time.Time) error
	ListWalletBalancesAbove(ctx context.Context, amount int64, limit int) ([]WalletBalance, error)
}
