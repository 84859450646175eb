package wallet

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// Fold applies an event to wallet state.
func Fold(state State, evt event.Event) (State, error) {
	state = state.clone()
	switch evt.Type {
	case EventTypeCreated:
		state.Created = true
		state.WalletID = evt.AggregateID
		state.Balance = 0
	case EventTypeDepositInitiated, EventTypeWithdrawInitiated:
		var payload MovePayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		kind := KindDeposit
		if evt.Type == EventTypeWithdrawInitiated {
			kind = KindWithdraw
			state.Balance -= payload.Amount
		}
		state.Pending[payload.TransactionID] = Transaction{
			TransactionID: payload.TransactionID,
			Amount:        payload.Amount,
			Kind:          kind,
		}
	case EventTypeDeposited, EventTypeWithdrawn:
		var payload MovePayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		delete(state.Pending, payload.TransactionID)
		if evt.Type == EventTypeDeposited {
			state.Balance += payload.Amount
		}
		state.Executed[payload.TransactionID] = true
	case EventTypeTransactionCancelled:
		var payload CancelledPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		if tx, ok := state.Pending[payload.TransactionID]; ok {
			if tx.Kind == KindWithdraw {
				state.Balance += tx.Amount
			}
			delete(state.Pending, payload.TransactionID)
		}
	case EventTypeTransactionCompleted:
		var payload TransactionPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		delete(state.Executed, payload.TransactionID)
	default:
		return state, fmt.Errorf("unknown wallet event type: %s", evt.Type)
	}
	return state, nil
}

// Folder adapts Fold to the engine's untyped state.
type Folder struct{}

// Apply implements engine.Applier and replay.Applier.
func (Folder) Apply(state any, evt event.Event) (any, error) {
	current, err := AssertState(state)
	if err != nil {
		return nil, err
	}
	return Fold(current, evt)
}

// AssertState narrows untyped engine state to a wallet State. A nil state is the
// zero wallet.
func AssertState(state any) (State, error) {
	switch typed := state.(type) {
	case nil:
		return State{}, nil
	case State:
		return typed, nil
	case *State:
		if typed == nil {
			return State{}, nil
		}
		return *typed, nil
	default:
		return State{}, fmt.Errorf("unsupported wallet state type %T", state)
	}
}
