package transfer

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// RegisterCommands registers saga commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	definitions := []command.Definition{
		{Type: CommandTypeInit, ValidatePayload: validateInitPayload},
		{Type: CommandTypeParticipantJoin, ValidatePayload: validateParticipantPayload},
		{Type: CommandTypeParticipantExecute, ValidatePayload: validateParticipantPayload},
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

// RegisterEvents registers saga events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	definitions := []event.Definition{
		{Type: EventTypeCreated, ValidatePayload: validateInitPayload},
		{Type: EventTypeParticipantJoined, ValidatePayload: validateParticipantPayload},
		{Type: EventTypeInitiated, ValidatePayload: validateParticipantsPayload},
		{Type: EventTypeParticipantExecuted, ValidatePayload: validateParticipantPayload},
		{Type: EventTypeCompleted, ValidatePayload: validateParticipantsPayload},
		{Type: EventTypeCancelled, ValidatePayload: validateParticipantsPayload},
	}
	for _, def := range definitions {
		def.AggregateType = AggregateType
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validateInitPayload(raw json.RawMessage) error {
	var payload InitPayload
	return json.Unmarshal(raw, &payload)
}

func validateParticipantPayload(raw json.RawMessage) error {
	var payload ParticipantPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.WalletID) == "" {
		return errors.New("wallet_id is required")
	}
	return nil
}

func validateParticipantsPayload(raw json.RawMessage) error {
	var payload ParticipantsPayload
	return json.Unmarshal(raw, &payload)
}
