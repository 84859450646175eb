package workflow

import (
	"encoding/json"
	"errors"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// RegisterCommands registers workflow commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	definitions := []command.Definition{
		{Type: CommandTypeStart, ValidatePayload: validateStartPayload},
		{Type: CommandTypeInitiate},
		{Type: CommandTypeFailStep, ValidatePayload: validateStepFailedPayload},
		{Type: CommandTypeResumeStep},
		{Type: CommandTypeFailOver},
		{Type: CommandTypeComplete},
		{Type: CommandTypeCancel},
	}
	for _, def := range definitions {
		def.AggregateType = AggregateType
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents registers workflow events with the shared registry. Step failures
// and resumptions only rebuild state; the rest are routed to reactors.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	definitions := []event.Definition{
		{Type: EventTypeStarted, ValidatePayload: validateStartPayload},
		{Type: EventTypeInitiated},
		{Type: EventTypeStepFailed, Intent: event.IntentReplayOnly, ValidatePayload: validateStepFailedPayload},
		{Type: EventTypeStepResumed, Intent: event.IntentReplayOnly},
		{Type: EventTypeFailedOver},
		{Type: EventTypeCompleted},
		{Type: EventTypeCancelled},
	}
	for _, def := range definitions {
		def.AggregateType = AggregateType
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validateStartPayload(raw json.RawMessage) error {
	var payload StartPayload
	return json.Unmarshal(raw, &payload)
}

func validateStepFailedPayload(raw json.RawMessage) error {
	var payload StepFailedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Step == StepEnded {
		return errors.New("step is required")
	}
	return nil
}
