package transfer

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transferid"
)

// AggregateType names saga streams.
const AggregateType = "transfer"

const (
	CommandTypeInit               command.Type = "transfer.init"
	CommandTypeParticipantJoin    command.Type = "transfer.participant_join"
	CommandTypeParticipantExecute command.Type = "transfer.participant_execute"
	CommandTypeCancel             command.Type = "transfer.cancel"

	EventTypeCreated             event.Type = "transfer.created"
	EventTypeParticipantJoined   event.Type = "transfer.participant_joined"
	EventTypeInitiated           event.Type = "transfer.initiated"
	EventTypeParticipantExecuted event.Type = "transfer.participant_executed"
	EventTypeCompleted           event.Type = "transfer.completed"
	EventTypeCancelled           event.Type = "transfer.cancelled"

	RejectionCodeIDInvalid            = "TRANSFER_ID_INVALID"
	RejectionCodeParticipantsRequired = "TRANSFER_PARTICIPANTS_REQUIRED"
	RejectionCodeAlreadyResolved      = "TRANSFER_ALREADY_RESOLVED"
	RejectionCodeInProgress           = "TRANSFER_IN_PROGRESS"
)

// Decide returns the decision for a saga command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case CommandTypeInit:
		return decideInit(state, cmd, now)
	case CommandTypeParticipantJoin:
		walletID := participantID(cmd)
		if !state.Created || state.Status == StatusCancelled {
			return command.Noop()
		}
		p, ok := state.Participants[walletID]
		if !ok || p.Joined {
			return command.Noop()
		}
		payloadJSON, _ := json.Marshal(ParticipantPayload{WalletID: walletID})
		events := []event.Event{command.NewEvent(cmd, EventTypeParticipantJoined, payloadJSON, now().UTC())}
		p.Joined = true
		if state.Status == StatusPending && state.with(walletID, p).allJoined() {
			setJSON, _ := json.Marshal(ParticipantsPayload{ParticipantIDs: state.ParticipantIDs()})
			events = append(events, command.NewEvent(cmd, EventTypeInitiated, setJSON, now().UTC()))
		}
		return command.Accept(events...)
	case CommandTypeParticipantExecute:
		walletID := participantID(cmd)
		if !state.Created || state.Status != StatusInitiated {
			return command.Noop()
		}
		p, ok := state.Participants[walletID]
		if !ok || !p.Joined || p.Executed {
			return command.Noop()
		}
		payloadJSON, _ := json.Marshal(ParticipantPayload{WalletID: walletID})
		events := []event.Event{command.NewEvent(cmd, EventTypeParticipantExecuted, payloadJSON, now().UTC())}
		p.Executed = true
		if state.with(walletID, p).allExecuted() {
			setJSON, _ := json.Marshal(ParticipantsPayload{ParticipantIDs: state.ParticipantIDs()})
			events = append(events, command.NewEvent(cmd, EventTypeCompleted, setJSON, now().UTC()))
		}
		return command.Accept(events...)
	case CommandTypeCancel:
		if !state.Created || state.Status != StatusPending {
			return command.Noop()
		}
		payloadJSON, _ := json.Marshal(ParticipantsPayload{ParticipantIDs: state.ParticipantIDs()})
		return command.Accept(command.NewEvent(cmd, EventTypeCancelled, payloadJSON, now().UTC()))
	}

	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNSUPPORTED",
		Kind:    command.KindValidation,
		Message: "command type is not supported by transfer decider",
	})
}

func decideInit(state State, cmd command.Command, now func() time.Time) command.Decision {
	if !transferid.IsSaga(cmd.AggregateID) {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeIDInvalid,
			Kind:    command.KindValidation,
			Message: "transfer id must start with " + transferid.SagaPrefix,
		})
	}
	if state.Created {
		switch state.Status {
		case StatusPending:
			return command.Noop()
		case StatusInitiated:
			return command.Reject(command.Rejection{
				Code:    RejectionCodeInProgress,
				Kind:    command.KindConflict,
				Message: "transfer [" + cmd.AggregateID + "] is already in progress",
			})
		default:
			return command.Reject(command.Rejection{
				Code:    RejectionCodeAlreadyResolved,
				Kind:    command.KindConflict,
				Message: "transfer [" + cmd.AggregateID + "] is already " + string(state.Status),
			})
		}
	}
	var payload InitPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	ids := normalizeIDs(payload.ParticipantIDs)
	if len(ids) == 0 {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeParticipantsRequired,
			Kind:    command.KindValidation,
			Message: "at least one participant is required",
		})
	}
	payloadJSON, _ := json.Marshal(InitPayload{ParticipantIDs: ids})
	return command.Accept(command.NewEvent(cmd, EventTypeCreated, payloadJSON, now().UTC()))
}

func participantID(cmd command.Command) string {
	var payload ParticipantPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	return strings.TrimSpace(payload.WalletID)
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Decider adapts Decide to the engine's untyped state.
type Decider struct{}

// Decide implements engine.Decider.
func (Decider) Decide(state any, cmd command.Command, now func() time.Time) command.Decision {
	current, _ := AssertState(state)
	return Decide(current, cmd, now)
}
