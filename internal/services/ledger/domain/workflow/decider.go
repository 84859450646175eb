package workflow

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transferid"
)

// AggregateType names workflow streams.
const AggregateType = "workflow"

const (
	CommandTypeStart      command.Type = "workflow.start"
	CommandTypeInitiate   command.Type = "workflow.initiate"
	CommandTypeFailStep   command.Type = "workflow.step.fail"
	CommandTypeResumeStep command.Type = "workflow.step.resume"
	CommandTypeFailOver   command.Type = "workflow.fail_over"
	CommandTypeComplete   command.Type = "workflow.complete"
	CommandTypeCancel     command.Type = "workflow.cancel"

	EventTypeStarted     event.Type = "workflow.started"
	EventTypeInitiated   event.Type = "workflow.initiated"
	EventTypeStepFailed  event.Type = "workflow.step_failed"
	EventTypeStepResumed event.Type = "workflow.step_resumed"
	EventTypeFailedOver  event.Type = "workflow.failed_over"
	EventTypeCompleted   event.Type = "workflow.completed"
	EventTypeCancelled   event.Type = "workflow.cancelled"

	RejectionCodeIDInvalid       = "WORKFLOW_ID_INVALID"
	RejectionCodeAmountInvalid   = "WORKFLOW_AMOUNT_INVALID"
	RejectionCodeWalletInvalid   = "WORKFLOW_WALLET_INVALID"
	RejectionCodeAlreadyStarted  = "WORKFLOW_ALREADY_STARTED"
	RejectionCodeWorkflowMissing = "WORKFLOW_NOT_FOUND"
)

// Decide returns the decision for a workflow command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	if cmd.Type == CommandTypeStart {
		return decideStart(state, cmd, now)
	}
	if !state.Started {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeWorkflowMissing,
			Kind:    command.KindNotFound,
			Message: "workflow [" + cmd.AggregateID + "] was never started",
		})
	}
	if state.Ended() {
		return command.Noop()
	}

	switch cmd.Type {
	case CommandTypeInitiate:
		if state.Step != StepInitiateTransfer {
			return command.Noop()
		}
		return accept(cmd, EventTypeInitiated, StepPayload{Step: StepExecute}, now)
	case CommandTypeFailStep:
		var payload StepFailedPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		if payload.Step != state.Step {
			return command.Noop()
		}
		return accept(cmd, EventTypeStepFailed, payload, now)
	case CommandTypeResumeStep:
		if state.Status != StatusPaused {
			return command.Noop()
		}
		return accept(cmd, EventTypeStepResumed, StepPayload{Step: state.Step}, now)
	case CommandTypeFailOver:
		if state.Step != StepInitiateTransfer {
			return command.Noop()
		}
		var payload FailedOverPayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payload.From = StepInitiateTransfer
		payload.To = StepCancel
		return accept(cmd, EventTypeFailedOver, payload, now)
	case CommandTypeComplete:
		if state.Step != StepExecute {
			return command.Noop()
		}
		return accept(cmd, EventTypeCompleted, StepPayload{Step: StepExecute}, now)
	case CommandTypeCancel:
		if state.Step != StepCancel {
			return command.Noop()
		}
		return accept(cmd, EventTypeCancelled, StepPayload{Step: StepCancel}, now)
	}

	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNSUPPORTED",
		Kind:    command.KindValidation,
		Message: "command type is not supported by workflow decider",
	})
}

func decideStart(state State, cmd command.Command, now func() time.Time) command.Decision {
	if !transferid.IsWorkflow(cmd.AggregateID) {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeIDInvalid,
			Kind:    command.KindValidation,
			Message: "workflow id must start with " + transferid.WorkflowPrefix,
		})
	}
	var payload StartPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	payload.Transfer.FromWalletID = strings.TrimSpace(payload.Transfer.FromWalletID)
	payload.Transfer.ToWalletID = strings.TrimSpace(payload.Transfer.ToWalletID)
	if payload.Transfer.Amount <= 0 {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeAmountInvalid,
			Kind:    command.KindValidation,
			Message: "transfer amount must be greater than zero",
		})
	}
	if payload.Transfer.FromWalletID == "" || payload.Transfer.ToWalletID == "" {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeWalletInvalid,
			Kind:    command.KindValidation,
			Message: "source and destination wallets are required",
		})
	}
	if payload.Transfer.FromWalletID == payload.Transfer.ToWalletID {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeWalletInvalid,
			Kind:    command.KindValidation,
			Message: "source and destination wallets must differ",
		})
	}
	if state.Started {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeAlreadyStarted,
			Kind:    command.KindConflict,
			Message: "workflow [" + cmd.AggregateID + "] already started",
		})
	}
	return accept(cmd, EventTypeStarted, payload, now)
}

func accept(cmd command.Command, eventType event.Type, payload any, now func() time.Time) command.Decision {
	payloadJSON, _ := json.Marshal(payload)
	return command.Accept(command.NewEvent(cmd, eventType, payloadJSON, now().UTC()))
}

// Decider adapts Decide to the engine's untyped state.
type Decider struct{}

// Decide implements engine.Decider.
func (Decider) Decide(state any, cmd command.Command, now func() time.Time) command.Decision {
	current, _ := AssertState(state)
	return Decide(current, cmd, now)
}
