package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/journal"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/replay"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultConflictRetries = 5
	tracerName             = "github.com/louisbranch/walletsaga/internal/services/ledger/domain/engine"
)

var (
	// ErrCommandRegistryRequired indicates a missing command registry.
	ErrCommandRegistryRequired = errors.New("command registry is required")
	// ErrDeciderRequired indicates a missing decider.
	ErrDeciderRequired = errors.New("decider is required")
	// ErrStateLoaderRequired indicates a missing state loader.
	ErrStateLoaderRequired = errors.New("state loader is required")
	// ErrJournalRequired indicates a missing event journal.
	ErrJournalRequired = errors.New("event journal is required")
)

// StateLoader loads domain state and head sequence for deciders.
type StateLoader interface {
	Load(ctx context.Context, stream replay.Stream) (state any, seq uint64, err error)
}

// EventJournal appends a batch of events to one stream if it is still at expectedSeq.
type EventJournal interface {
	BatchAppend(ctx context.Context, expectedSeq uint64, events []event.Event) ([]event.Event, error)
}

// Applier folds events into state.
type Applier interface {
	Apply(state any, evt event.Event) (any, error)
}

// Decider returns a decision for a command.
type Decider interface {
	Decide(state any, cmd command.Command, now func() time.Time) command.Decision
}

// Handler validates, decides and persists commands for one aggregate kind.
type Handler struct {
	Commands        *command.Registry
	Events          *event.Registry
	Journal         EventJournal
	StateLoader     StateLoader
	Snapshots       StateSnapshotStore
	Codec           StateCodec
	SnapshotEvery   uint64
	Decider         Decider
	Applier         Applier
	Locks           *StreamLocks
	ConflictRetries uint
	Now             func() time.Time
}

// Result captures execution outcomes. State is the aggregate state after the
// decision's events were folded in.
type Result struct {
	Decision command.Decision
	State    any
	Seq      uint64
}

// Execute validates cmd, decides against current state, appends the emitted events
// and returns the folded state. A stale append is retried with fresh state.
func (h Handler) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	if h.Commands == nil {
		return Result{}, ErrCommandRegistryRequired
	}
	if h.Decider == nil {
		return Result{}, ErrDeciderRequired
	}
	if h.StateLoader == nil {
		return Result{}, ErrStateLoaderRequired
	}
	if h.Journal == nil {
		return Result{}, ErrJournalRequired
	}
	validated, err := h.Commands.ValidateForDecision(cmd)
	if err != nil {
		return Result{}, err
	}
	cmd = validated

	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.String("command.type", string(cmd.Type)),
		attribute.String("aggregate.type", cmd.AggregateType),
		attribute.String("aggregate.id", cmd.AggregateID),
	))
	defer span.End()

	if h.Locks != nil {
		unlock := h.Locks.Lock(event.StreamKey(cmd.AggregateType, cmd.AggregateID))
		defer unlock()
	}

	retries := h.ConflictRetries
	if retries == 0 {
		retries = defaultConflictRetries
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	result, err := backoff.Retry(ctx, func() (Result, error) {
		result, err := h.executeOnce(ctx, cmd)
		if errors.Is(err, journal.ErrConcurrencyConflict) {
			span.AddEvent("append conflict")
			return Result{}, err
		}
		if err != nil {
			return Result{}, backoff.Permanent(err)
		}
		return result, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(retries))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("decision.events", len(result.Decision.Events)),
		attribute.Int("decision.rejections", len(result.Decision.Rejections)),
	)
	return result, nil
}

func (h Handler) executeOnce(ctx context.Context, cmd command.Command) (Result, error) {
	stream := replay.Stream{AggregateType: cmd.AggregateType, AggregateID: cmd.AggregateID}
	state, seq, err := h.StateLoader.Load(ctx, stream)
	if err != nil {
		return Result{}, fmt.Errorf("load state %s: %w", event.StreamKey(stream.AggregateType, stream.AggregateID), err)
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}
	decision := h.Decider.Decide(state, cmd, now)
	if len(decision.Rejections) > 0 || len(decision.Events) == 0 {
		decision.Events = nil
		return Result{Decision: decision, State: state, Seq: seq}, nil
	}

	if h.Events != nil {
		vetted := make([]event.Event, 0, len(decision.Events))
		for _, evt := range decision.Events {
			v, err := h.Events.ValidateForAppend(evt)
			if err != nil {
				return Result{}, err
			}
			vetted = append(vetted, v)
		}
		decision.Events = vetted
	}

	stored, err := h.Journal.BatchAppend(ctx, seq, decision.Events)
	if err != nil {
		return Result{}, err
	}
	decision.Events = stored

	if h.Applier != nil {
		for _, evt := range stored {
			state, err = h.Applier.Apply(state, evt)
			if err != nil {
				return Result{}, wrapNonRetryable(fmt.Errorf("fold %s seq %d: %w", evt.Type, evt.Seq, err))
			}
		}
	}
	head := stored[len(stored)-1].Seq
	h.maybeSnapshot(ctx, stream, seq, head, state)
	return Result{Decision: decision, State: state, Seq: head}, nil
}

// maybeSnapshot saves state when the append crossed a SnapshotEvery boundary.
// Snapshot errors are dropped; the next load replays the missing tail.
func (h Handler) maybeSnapshot(ctx context.Context, stream replay.Stream, fromSeq, toSeq uint64, state any) {
	if h.Snapshots == nil || h.Codec == nil || h.SnapshotEvery == 0 {
		return
	}
	if fromSeq/h.SnapshotEvery == toSeq/h.SnapshotEvery {
		return
	}
	payload, err := h.Codec.Encode(state)
	if err != nil {
		return
	}
	_ = h.Snapshots.SaveSnapshot(ctx, stream.AggregateType, stream.AggregateID, toSeq, payload)
}

// Load returns the current state of a stream without deciding anything.
func (h Handler) Load(ctx context.Context, aggregateType, aggregateID string) (any, uint64, error) {
	if h.StateLoader == nil {
		return nil, 0, ErrStateLoaderRequired
	}
	return h.StateLoader.Load(ctx, replay.Stream{AggregateType: aggregateType, AggregateID: aggregateID})
}
