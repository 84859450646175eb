package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/engine"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/replay"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transfer"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
)

// EventStore is the event log the engine appends to and replays from.
type EventStore interface {
	engine.EventJournal
	replay.EventStore
}

// Config wires the dispatcher to storage.
type Config struct {
	Registries    Registries
	Events        EventStore
	Snapshots     engine.StateSnapshotStore
	SnapshotEvery uint64
	Now           func() time.Time
}

// Dispatcher routes commands to the engine handler owning their aggregate.
type Dispatcher struct {
	handlers map[string]engine.Handler
}

// NewDispatcher builds one engine handler per aggregate sharing stream locks.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Registries.Commands == nil || cfg.Registries.Events == nil {
		return nil, errors.New("command and event registries are required")
	}
	if cfg.Events == nil {
		return nil, errors.New("event store is required")
	}
	locks := engine.NewStreamLocks()
	build := func(decider engine.Decider, folder replay.Applier, codec engine.StateCodec, factory func() any) engine.Handler {
		return engine.Handler{
			Commands: cfg.Registries.Commands,
			Events:   cfg.Registries.Events,
			Journal:  cfg.Events,
			StateLoader: engine.ReplayStateLoader{
				Events:       cfg.Events,
				Snapshots:    cfg.Snapshots,
				Codec:        codec,
				Folder:       folder,
				StateFactory: factory,
			},
			Snapshots:     cfg.Snapshots,
			Codec:         codec,
			SnapshotEvery: cfg.SnapshotEvery,
			Decider:       decider,
			Applier:       folder,
			Locks:         locks,
			Now:           cfg.Now,
		}
	}
	return &Dispatcher{handlers: map[string]engine.Handler{
		wallet.AggregateType: build(wallet.Decider{}, wallet.Folder{}, engine.JSONCodec[wallet.State]{},
			func() any { return wallet.State{} }),
		transfer.AggregateType: build(transfer.Decider{}, transfer.Folder{}, engine.JSONCodec[transfer.State]{},
			func() any { return transfer.State{} }),
		workflow.AggregateType: build(workflow.Decider{}, workflow.Folder{}, engine.JSONCodec[workflow.State]{},
			func() any { return workflow.State{} }),
	}}, nil
}

// Execute runs cmd and returns the resulting state. A rejected command returns
// the unchanged state and an *apperrors.Error.
func (d *Dispatcher) Execute(ctx context.Context, cmd command.Command) (engine.Result, error) {
	handler, ok := d.handlers[cmd.AggregateType]
	if !ok {
		return engine.Result{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown aggregate type %q", cmd.AggregateType))
	}
	cmd = applyOrigin(ctx, cmd)
	result, err := handler.Execute(ctx, cmd)
	if err != nil {
		return engine.Result{}, mapEngineError(err)
	}
	if result.Decision.Rejected() {
		return result, rejectionError(result.Decision.Rejections[0])
	}
	return result, nil
}

// Dispatch runs cmd for callers that only care about failure.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) error {
	_, err := d.Execute(ctx, cmd)
	return err
}

// Load replays an aggregate's current state.
func (d *Dispatcher) Load(ctx context.Context, aggregateType, aggregateID string) (any, uint64, error) {
	handler, ok := d.handlers[aggregateType]
	if !ok {
		return nil, 0, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown aggregate type %q", aggregateType))
	}
	return handler.Load(ctx, aggregateType, aggregateID)
}

func rejectionError(rejection command.Rejection) error {
	code := apperrors.CodeUnknown
	switch rejection.Kind {
	case command.KindNotFound:
		code = apperrors.CodeNotFound
	case command.KindConflict:
		code = apperrors.CodeConflict
	case command.KindValidation:
		code = apperrors.CodeValidation
	case command.KindInsufficientFunds:
		code = apperrors.CodeInsufficientFunds
	}
	return apperrors.WithMetadata(code, rejection.Message, map[string]string{"rejection": rejection.Code})
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, command.ErrPayloadRejected),
		errors.Is(err, command.ErrPayloadInvalid),
		errors.Is(err, command.ErrAggregateIDRequired),
		errors.Is(err, command.ErrTypeRequired),
		errors.Is(err, command.ErrTypeUnknown),
		errors.Is(err, command.ErrAggregateTypeMismatch),
		errors.Is(err, command.ErrActorTypeInvalid),
		errors.Is(err, event.ErrPayloadRejected):
		return apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	default:
		return err
	}
}

func marshalPayload(payload any) []byte {
	data, _ := json.Marshal(payload)
	return data
}
