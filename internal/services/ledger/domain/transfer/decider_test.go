package transfer

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
)

var fixedNow = time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func sagaCommand(id string, cmdType command.Type, payload string) command.Command {
	return command.Command{
		AggregateType: AggregateType,
		AggregateID:   id,
		Type:          cmdType,
		ActorType:     command.ActorTypeReactor,
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

func pendingSaga(t *testing.T) State {
	t.Helper()
	state, decision := apply(t, State{}, sagaCommand("m:t3", CommandTypeInit, `{"participant_ids":["B","A"]}`))
	if len(decision.Events) != 1 {
		t.Fatalf("init events = %d, want 1", len(decision.Events))
	}
	return state
}

func join(id string) string { return `{"wallet_id":"` + id + `"}` }

func TestDecideInit_CreatesPendingSaga(t *testing.T) {
	state := pendingSaga(t)
	if state.Status != StatusPending {
		t.Fatalf("status = %s, want %s", state.Status, StatusPending)
	}
	if got := state.ParticipantIDs(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("participants = %v, want [A B]", got)
	}
}

func TestDecideInit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		payload string
	}{
		{name: "missing prefix", id: "t3", payload: `{"participant_ids":["A"]}`},
		{name: "workflow prefix", id: "w:t3", payload: `{"participant_ids":["A"]}`},
		{name: "no participants", id: "m:t3", payload: `{"participant_ids":[" "]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := Decide(State{}, sagaCommand(tc.id, CommandTypeInit, tc.payload), clock)
			if !decision.Rejected() || decision.Rejections[0].Kind != command.KindValidation {
				t.Fatalf("expected validation rejection, got %+v", decision)
			}
		})
	}
}

func TestDecideInit_ExistingSaga(t *testing.T) {
	tests := []struct {
		status Status
		noop   bool
	}{
		{status: StatusPending, noop: true},
		{status: StatusInitiated},
		{status: StatusCancelled},
		{status: StatusCompleted},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			state := State{Created: true, Status: tc.status, Participants: map[string]Participant{"A": {}}}
			decision := Decide(state, sagaCommand("m:t3", CommandTypeInit, `{"participant_ids":["A"]}`), clock)
			if tc.noop {
				if !decision.IsNoop() {
					t.Fatalf("expected noop, got %+v", decision)
				}
				return
			}
			if !decision.Rejected() || decision.Rejections[0].Kind != command.KindConflict {
				t.Fatalf("expected conflict rejection, got %+v", decision)
			}
		})
	}
}

func TestDecideJoin_LastJoinEmitsInitiatedInSameBatch(t *testing.T) {
	state := pendingSaga(t)
	state, decision := apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("A")))
	if len(decision.Events) != 1 {
		t.Fatalf("first join events = %d, want 1", len(decision.Events))
	}

	state, decision = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("B")))
	if len(decision.Events) != 2 {
		t.Fatalf("last join events = %d, want 2", len(decision.Events))
	}
	if decision.Events[0].Type != EventTypeParticipantJoined || decision.Events[1].Type != EventTypeInitiated {
		t.Fatalf("event types = %s,%s", decision.Events[0].Type, decision.Events[1].Type)
	}
	var payload ParticipantsPayload
	if err := json.Unmarshal(decision.Events[1].PayloadJSON, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !reflect.DeepEqual(payload.ParticipantIDs, []string{"A", "B"}) {
		t.Fatalf("initiated participants = %v, want [A B]", payload.ParticipantIDs)
	}
	if state.Status != StatusInitiated {
		t.Fatalf("status = %s, want %s", state.Status, StatusInitiated)
	}

	before := state
	state, decision = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("C")))
	if !decision.IsNoop() {
		t.Fatalf("unknown participant join should be noop, got %+v", decision)
	}
	if !reflect.DeepEqual(state, before) {
		t.Fatalf("state changed on unknown participant join")
	}
}

func TestDecideJoin_DuplicateIsNoop(t *testing.T) {
	state := pendingSaga(t)
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("A")))
	decision := Decide(state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("A")), clock)
	if !decision.IsNoop() {
		t.Fatalf("expected noop, got %+v", decision)
	}
}

func TestDecideJoin_AfterCancelIsNoop(t *testing.T) {
	state := pendingSaga(t)
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("A")))
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeCancel, `{}`))

	decision := Decide(state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("B")), clock)
	if !decision.IsNoop() {
		t.Fatalf("late join after cancel should be noop, got %+v", decision)
	}
}

func TestDecideExecute_LastExecuteEmitsCompleted(t *testing.T) {
	state := pendingSaga(t)
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("A")))
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("B")))
	state, decision := apply(t, state, sagaCommand("m:t3", CommandTypeParticipantExecute, join("B")))
	if len(decision.Events) != 1 {
		t.Fatalf("first execute events = %d, want 1", len(decision.Events))
	}
	state, decision = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantExecute, join("A")))
	if len(decision.Events) != 2 || decision.Events[1].Type != EventTypeCompleted {
		t.Fatalf("expected executed+completed, got %+v", decision.Events)
	}
	if state.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", state.Status, StatusCompleted)
	}

	decision = Decide(state, sagaCommand("m:t3", CommandTypeParticipantExecute, join("A")), clock)
	if !decision.IsNoop() {
		t.Fatalf("duplicate execute should be noop, got %+v", decision)
	}
}

func TestDecideExecute_CancelledSagaIsNoop(t *testing.T) {
	state := pendingSaga(t)
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeCancel, `{}`))
	decision := Decide(state, sagaCommand("m:t3", CommandTypeParticipantExecute, join("A")), clock)
	if !decision.IsNoop() {
		t.Fatalf("expected noop, got %+v", decision)
	}
}

func TestDecideExecute_PendingSagaIsNoop(t *testing.T) {
	state := pendingSaga(t)
	for _, id := range []string{"A", "B"} {
		var decision command.Decision
		state, decision = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantExecute, join(id)))
		if !decision.IsNoop() {
			t.Fatalf("execute %s while pending should be noop, got %+v", id, decision.Events)
		}
	}
	if state.Status != StatusPending {
		t.Fatalf("status = %s, want %s", state.Status, StatusPending)
	}

	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeCancel, `{}`))
	if state.Status != StatusCancelled {
		t.Fatalf("status = %s, want %s", state.Status, StatusCancelled)
	}
	for id, p := range state.Participants {
		if p.Executed {
			t.Fatalf("participant %s executed on a cancelled saga", id)
		}
	}
}

func TestDecideExecute_UnjoinedParticipantIsNoop(t *testing.T) {
	state := pendingSaga(t)
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("A")))
	state, _ = apply(t, state, sagaCommand("m:t3", CommandTypeParticipantJoin, join("B")))
	state.Participants["B"] = Participant{}

	decision := Decide(state, sagaCommand("m:t3", CommandTypeParticipantExecute, join("B")), clock)
	if !decision.IsNoop() {
		t.Fatalf("execute before join should be noop, got %+v", decision.Events)
	}
}

func TestDecideCancel_OnlyWhilePending(t *testing.T) {
	state := pendingSaga(t)
	cancelled, decision := apply(t, state, sagaCommand("m:t3", CommandTypeCancel, `{}`))
	if len(decision.Events) != 1 || decision.Events[0].Type != EventTypeCancelled {
		t.Fatalf("expected cancelled event, got %+v", decision.Events)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want %s", cancelled.Status, StatusCancelled)
	}

	for _, status := range []Status{StatusInitiated, StatusCompleted, StatusCancelled} {
		st := state
		st.Status = status
		decision := Decide(st, sagaCommand("m:t3", CommandTypeCancel, `{}`), clock)
		if !decision.IsNoop() {
			t.Fatalf("cancel on %s should be noop, got %+v", status, decision)
		}
	}

	if decision := Decide(State{}, sagaCommand("m:t3", CommandTypeCancel, `{}`), clock); !decision.IsNoop() {
		t.Fatalf("cancel on absent saga should be noop, got %+v", decision)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusInitiated.Terminal() {
		t.Fatal("pending and initiated are not terminal")
	}
	if !StatusCancelled.Terminal() || !StatusCompleted.Terminal() {
		t.Fatal("cancelled and completed are terminal")
	}
}
