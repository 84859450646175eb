package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// Fold applies an event to saga state.
func Fold(state State, evt event.Event) (State, error) {
	state = state.clone()
	switch evt.Type {
	case EventTypeCreated:
		var payload InitPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Created = true
		state.TransferID = evt.AggregateID
		state.Status = StatusPending
		for _, id := range payload.ParticipantIDs {
			state.Participants[id] = Participant{}
		}
	case EventTypeParticipantJoined, EventTypeParticipantExecuted:
		var payload ParticipantPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		p, ok := state.Participants[payload.WalletID]
		if !ok {
			return state, nil
		}
		if evt.Type == EventTypeParticipantJoined {
			p.Joined = true
		} else {
			p.Executed = true
		}
		state.Participants[payload.WalletID] = p
	case EventTypeInitiated:
		state.Status = StatusInitiated
	case EventTypeCompleted:
		state.Status = StatusCompleted
	case EventTypeCancelled:
		state.Status = StatusCancelled
	default:
		return state, fmt.Errorf("unknown transfer event type: %s", evt.Type)
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

// AssertState narrows untyped engine state to a saga State.
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
		return State{}, fmt.Errorf("unsupported transfer state type %T", state)
	}
}
