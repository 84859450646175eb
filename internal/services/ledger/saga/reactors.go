package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transfer"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transferid"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/router"
	"github.com/louisbranch/walletsaga/internal/services/ledger/service"
	"golang.org/x/sync/errgroup"
)

// TimeoutTimerPrefix prefixes the name of each saga's timeout timer.
const TimeoutTimerPrefix = "timeout-transfer-timer:"

// DefaultTimeout bounds how long a saga may stay pending.
const DefaultTimeout = 20 * time.Second

// Transfers is the saga command surface the wallet reactor drives.
type Transfers interface {
	Join(ctx context.Context, transferID, walletID string) (transfer.State, error)
	Execute(ctx context.Context, transferID, walletID string) (transfer.State, error)
}

// Wallets is the wallet command surface the saga reactor drives.
type Wallets interface {
	ExecuteTransaction(ctx context.Context, walletID, txID string) (wallet.State, error)
	CompleteTransaction(ctx context.Context, walletID, txID string) (wallet.State, error)
	CancelTransaction(ctx context.Context, walletID, txID string) (wallet.State, error)
}

// Timers schedules and cancels durable timers.
type Timers interface {
	Schedule(ctx context.Context, name string, delay time.Duration, cmd command.Command) error
	Cancel(ctx context.Context, name string) error
}

// Subscriber registers reactors with an event router.
type Subscriber interface {
	On(reactor router.Reactor, eventTypes ...event.Type)
}

// Register subscribes the wallet, saga and timeout reactors.
func Register(sub Subscriber, transfers Transfers, wallets Wallets, timers Timers, timeout time.Duration) {
	wr := WalletReactor{Transfers: transfers, Wallets: wallets}
	sub.On(wr, wr.EventTypes()...)
	sr := TransferReactor{Wallets: wallets}
	sub.On(sr, sr.EventTypes()...)
	tr := TimeoutReactor{Timers: timers, Timeout: timeout}
	sub.On(tr, tr.EventTypes()...)
}

// WalletReactor reports wallet progress on saga-owned transactions to the saga.
// A reservation that joins an already cancelled saga is released on its wallet.
type WalletReactor struct {
	Transfers Transfers
	Wallets   Wallets
}

// Name implements router.Reactor.
func (WalletReactor) Name() string { return "saga.wallet" }

// EventTypes lists the wallet events this reactor handles.
func (WalletReactor) EventTypes() []event.Type {
	return []event.Type{
		wallet.EventTypeDepositInitiated,
		wallet.EventTypeWithdrawInitiated,
		wallet.EventTypeDeposited,
		wallet.EventTypeWithdrawn,
	}
}

// Handle joins or executes the wallet on the saga named by the transaction id.
// Transactions not owned by a saga are ignored.
func (r WalletReactor) Handle(ctx context.Context, evt event.Event) error {
	var payload wallet.MovePayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return router.Permanent(fmt.Errorf("decode %s: %w", evt.Type, err))
	}
	if !transferid.IsSaga(payload.TransactionID) {
		return nil
	}
	ctx = reactorContext(ctx, r.Name(), evt, payload.TransactionID)

	switch evt.Type {
	case wallet.EventTypeDepositInitiated, wallet.EventTypeWithdrawInitiated:
		state, err := r.Transfers.Join(ctx, payload.TransactionID, evt.AggregateID)
		if err != nil {
			return classify(err)
		}
		if state.Status == transfer.StatusCancelled && r.Wallets != nil {
			log.Printf("releasing late reservation %s on wallet %s", payload.TransactionID, evt.AggregateID)
			_, err = r.Wallets.CancelTransaction(ctx, evt.AggregateID, payload.TransactionID)
		}
		return classify(err)
	case wallet.EventTypeDeposited, wallet.EventTypeWithdrawn:
		_, err := r.Transfers.Execute(ctx, payload.TransactionID, evt.AggregateID)
		return classify(err)
	}
	return nil
}

// TransferReactor drives every participant wallet when the saga advances.
type TransferReactor struct {
	Wallets Wallets
}

// Name implements router.Reactor.
func (TransferReactor) Name() string { return "saga.transfer" }

// EventTypes lists the saga events this reactor handles.
func (TransferReactor) EventTypes() []event.Type {
	return []event.Type{
		transfer.EventTypeInitiated,
		transfer.EventTypeCompleted,
		transfer.EventTypeCancelled,
	}
}

// Handle executes, completes or cancels the saga transaction on each participant.
func (r TransferReactor) Handle(ctx context.Context, evt event.Event) error {
	var payload transfer.ParticipantsPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return router.Permanent(fmt.Errorf("decode %s: %w", evt.Type, err))
	}
	var apply func(ctx context.Context, walletID, txID string) (wallet.State, error)
	switch evt.Type {
	case transfer.EventTypeInitiated:
		apply = r.Wallets.ExecuteTransaction
	case transfer.EventTypeCompleted:
		apply = r.Wallets.CompleteTransaction
	case transfer.EventTypeCancelled:
		apply = r.Wallets.CancelTransaction
	default:
		return nil
	}

	ctx = reactorContext(ctx, r.Name(), evt, evt.AggregateID)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, walletID := range payload.ParticipantIDs {
		group.Go(func() error {
			_, err := apply(groupCtx, walletID, evt.AggregateID)
			return err
		})
	}
	return classify(group.Wait())
}

// TimeoutReactor bounds how long a saga may stay pending.
type TimeoutReactor struct {
	Timers  Timers
	Timeout time.Duration
}

// Name implements router.Reactor.
func (TimeoutReactor) Name() string { return "saga.timeout" }

// EventTypes lists the saga events this reactor handles.
func (TimeoutReactor) EventTypes() []event.Type {
	return []event.Type{
		transfer.EventTypeCreated,
		transfer.EventTypeInitiated,
		transfer.EventTypeCompleted,
		transfer.EventTypeCancelled,
	}
}

// Handle schedules the timeout on creation and cancels it once the saga leaves pending.
func (r TimeoutReactor) Handle(ctx context.Context, evt event.Event) error {
	name := TimeoutTimerName(evt.AggregateID)
	if evt.Type != transfer.EventTypeCreated {
		return r.Timers.Cancel(ctx, name)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	payloadJSON, err := json.Marshal(transfer.CancelPayload{Reason: "timeout"})
	if err != nil {
		return router.Permanent(err)
	}
	return r.Timers.Schedule(ctx, name, timeout, command.Command{
		AggregateType: transfer.AggregateType,
		AggregateID:   evt.AggregateID,
		Type:          transfer.CommandTypeCancel,
		CorrelationID: evt.AggregateID,
		PayloadJSON:   payloadJSON,
	})
}

// TimeoutTimerName names the timeout timer of a saga.
func TimeoutTimerName(transferID string) string {
	return TimeoutTimerPrefix + transferID
}

func reactorContext(ctx context.Context, name string, evt event.Event, correlationID string) context.Context {
	return service.WithOrigin(ctx, service.Origin{
		ActorType:     command.ActorTypeReactor,
		ActorID:       name,
		CorrelationID: correlationID,
		CausationID:   evt.Ref(),
	})
}

// classify marks domain rejections as permanent; they fail the same way on every retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		log.Printf("saga reaction rejected: %v", err)
		return router.Permanent(err)
	}
	return err
}
