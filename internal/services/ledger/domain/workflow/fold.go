package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// Fold applies an event to workflow state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeStarted:
		var payload StartPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state = State{
			Started:    true,
			WorkflowID: evt.AggregateID,
			Transfer:   payload.Transfer,
			Status:     StatusCreated,
			Step:       StepInitiateTransfer,
		}
	case EventTypeInitiated:
		state = enterStep(state, StatusInitiated, StepExecute)
	case EventTypeStepFailed:
		var payload StepFailedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		if state.Status != StatusPaused {
			state.ResumeStatus = state.Status
		}
		state.Status = StatusPaused
		state.Attempts++
		state.LastError = payload.Error
	case EventTypeStepResumed:
		if state.Status == StatusPaused {
			state.Status = state.ResumeStatus
			state.ResumeStatus = ""
		}
	case EventTypeFailedOver:
		status := state.Status
		if status == StatusPaused {
			status = state.ResumeStatus
		}
		state = enterStep(state, status, StepCancel)
	case EventTypeCompleted:
		state = enterStep(state, StatusCompleted, StepEnded)
	case EventTypeCancelled:
		state = enterStep(state, StatusCancelled, StepEnded)
	default:
		return state, fmt.Errorf("unknown workflow event type: %s", evt.Type)
	}
	return state, nil
}

func enterStep(state State, status Status, step Step) State {
	state.Status = status
	state.ResumeStatus = ""
	state.Step = step
	state.Attempts = 0
	state.LastError = ""
	return state
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

// AssertState narrows untyped engine state to a workflow State.
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
		return State{}, fmt.Errorf("unsupported workflow state type %T", state)
	}
}
