package workflow

import (
	"testing"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

var fixedNow = time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func workflowCommand(cmdType command.Type, payload string) command.Command {
	return command.Command{
		AggregateType: AggregateType,
		AggregateID:   "w:t4",
		Type:          cmdType,
		ActorType:     command.ActorTypeWorkflow,
		PayloadJSON:   []byte(payload),
	}
}

func apply(t *testing.T, state State, cmd command.Command) (State, command.Decision) {
	t.Helper()
	decision := Decide(state, cmd, clock)
	for _, evt := range decision.Events {
		next, err := Fold(state, evt)
		if err != nil {
			t.Fatalf("fold %s: %v", evt.Type, err)
		}
		state = next
	}
	return state, decision
}

const startPayload = `{"transfer":{"amount":10,"from_wallet_id":"A","to_wallet_id":"B"}}`

func startedWorkflow(t *testing.T) State {
	t.Helper()
	state, decision := apply(t, State{}, workflowCommand(CommandTypeStart, startPayload))
	if len(decision.Events) != 1 {
		t.Fatalf("start events = %d, want 1", len(decision.Events))
	}
	return state
}

func TestDecideStart_RecordsCreatedState(t *testing.T) {
	state := startedWorkflow(t)
	if state.Status != StatusCreated {
		t.Fatalf("status = %s, want %s", state.Status, StatusCreated)
	}
	if state.Step != StepInitiateTransfer {
		t.Fatalf("step = %q, want %q", state.Step, StepInitiateTransfer)
	}
	if state.Transfer.Amount != 10 || state.Transfer.FromWalletID != "A" || state.Transfer.ToWalletID != "B" {
		t.Fatalf("transfer = %+v", state.Transfer)
	}
}

func TestDecideStart_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		state   State
		payload string
		kind    command.Kind
	}{
		{name: "saga prefix", id: "m:t4", payload: startPayload, kind: command.KindValidation},
		{name: "zero amount", id: "w:t4", payload: `{"transfer":{"amount":0,"from_wallet_id":"A","to_wallet_id":"B"}}`, kind: command.KindValidation},
		{name: "negative amount", id: "w:t4", payload: `{"transfer":{"amount":-5,"from_wallet_id":"A","to_wallet_id":"B"}}`, kind: command.KindValidation},
		{name: "missing wallet", id: "w:t4", payload: `{"transfer":{"amount":5,"from_wallet_id":"A"}}`, kind: command.KindValidation},
		{name: "same wallet", id: "w:t4", payload: `{"transfer":{"amount":5,"from_wallet_id":"A","to_wallet_id":"A"}}`, kind: command.KindValidation},
		{name: "already started", id: "w:t4", state: State{Started: true, Step: StepExecute}, payload: startPayload, kind: command.KindConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := workflowCommand(CommandTypeStart, tc.payload)
			cmd.AggregateID = tc.id
			decision := Decide(tc.state, cmd, clock)
			if !decision.Rejected() {
				t.Fatalf("expected rejection, got %+v", decision)
			}
			if decision.Rejections[0].Kind != tc.kind {
				t.Fatalf("rejection kind = %s, want %s", decision.Rejections[0].Kind, tc.kind)
			}
		})
	}
}

func TestDecide_NeverStartedIsNotFound(t *testing.T) {
	decision := Decide(State{}, workflowCommand(CommandTypeInitiate, `{}`), clock)
	if !decision.Rejected() || decision.Rejections[0].Kind != command.KindNotFound {
		t.Fatalf("expected not found rejection, got %+v", decision)
	}
}

func TestWorkflow_HappyPath(t *testing.T) {
	state := startedWorkflow(t)
	state, _ = apply(t, state, workflowCommand(CommandTypeInitiate, `{}`))
	if state.Status != StatusInitiated || state.Step != StepExecute {
		t.Fatalf("state = %+v, want initiated/execute", state)
	}
	state, _ = apply(t, state, workflowCommand(CommandTypeComplete, `{}`))
	if state.Status != StatusCompleted || !state.Ended() {
		t.Fatalf("state = %+v, want completed and ended", state)
	}

	decision := Decide(state, workflowCommand(CommandTypeCancel, `{}`), clock)
	if !decision.IsNoop() {
		t.Fatalf("ended workflow should ignore commands, got %+v", decision)
	}
}

func TestWorkflow_FailOverAfterRetries(t *testing.T) {
	state := startedWorkflow(t)
	for i := 1; i <= 3; i++ {
		state, _ = apply(t, state, workflowCommand(CommandTypeFailStep, `{"step":"initiate-transfer","error":"wallet unavailable"}`))
		if state.Status != StatusPaused {
			t.Fatalf("attempt %d status = %s, want %s", i, state.Status, StatusPaused)
		}
		if state.Attempts != i {
			t.Fatalf("attempts = %d, want %d", state.Attempts, i)
		}
		if i < 3 {
			state, _ = apply(t, state, workflowCommand(CommandTypeResumeStep, `{}`))
			if state.Status != StatusCreated {
				t.Fatalf("resumed status = %s, want %s", state.Status, StatusCreated)
			}
		}
	}

	state, decision := apply(t, state, workflowCommand(CommandTypeFailOver, `{"reason":"retries exhausted"}`))
	if len(decision.Events) != 1 || decision.Events[0].Type != EventTypeFailedOver {
		t.Fatalf("expected failed over event, got %+v", decision.Events)
	}
	if state.Step != StepCancel || state.Attempts != 0 || state.Status != StatusCreated {
		t.Fatalf("state = %+v, want created/cancel/0", state)
	}

	state, _ = apply(t, state, workflowCommand(CommandTypeCancel, `{}`))
	if state.Status != StatusCancelled || !state.Ended() {
		t.Fatalf("state = %+v, want cancelled and ended", state)
	}
}

func TestDecide_StepMismatchIsNoop(t *testing.T) {
	state := startedWorkflow(t)
	tests := []command.Command{
		workflowCommand(CommandTypeComplete, `{}`),
		workflowCommand(CommandTypeCancel, `{}`),
		workflowCommand(CommandTypeFailStep, `{"step":"execute"}`),
		workflowCommand(CommandTypeResumeStep, `{}`),
	}
	for _, cmd := range tests {
		if decision := Decide(state, cmd, clock); !decision.IsNoop() {
			t.Fatalf("%s should be noop, got %+v", cmd.Type, decision)
		}
	}

	state, _ = apply(t, state, workflowCommand(CommandTypeInitiate, `{}`))
	if decision := Decide(state, workflowCommand(CommandTypeFailOver, `{}`), clock); !decision.IsNoop() {
		t.Fatalf("fail over outside initiate-transfer should be noop, got %+v", decision)
	}
}

func TestRegisterEvents_StepFailedIsReplayOnly(t *testing.T) {
	registry := event.NewRegistry()
	if err := RegisterEvents(registry); err != nil {
		t.Fatalf("register events: %v", err)
	}
	if registry.ShouldRoute(EventTypeStepFailed) {
		t.Fatal("step failed events should not be routed")
	}
	if !registry.ShouldRoute(EventTypeStarted) {
		t.Fatal("started events should be routed")
	}
}
