package wallet

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// RegisterCommands registers wallet commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	definitions := []command.Definition{
		{Type: CommandTypeCreate},
		{Type: CommandTypeDeposit, ValidatePayload: validateMovePayload},
		{Type: CommandTypeWithdraw, ValidatePayload: validateMovePayload},
		{Type: CommandTypeExecute, ValidatePayload: validateTransactionPayload},
		{Type: CommandTypeComplete, ValidatePayload: validateTransactionPayload},
		{Type: CommandTypeCancel, ValidatePayload: validateTransactionPayload},
	}
	for _, def := range definitions {
		def.AggregateType = AggregateType
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// RegisterEvents registers wallet events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	definitions := []event.Definition{
		{Type: EventTypeCreated},
		{Type: EventTypeDepositInitiated, ValidatePayload: validateMovePayload},
		{Type: EventTypeWithdrawInitiated, ValidatePayload: validateMovePayload},
		{Type: EventTypeDeposited, ValidatePayload: validateMovePayload},
		{Type: EventTypeWithdrawn, ValidatePayload: validateMovePayload},
		{Type: EventTypeTransactionCancelled, ValidatePayload: validateTransactionPayload},
		{Type: EventTypeTransactionCompleted, ValidatePayload: validateTransactionPayload},
	}
	for _, def := range definitions {
		def.AggregateType = AggregateType
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validateMovePayload(raw json.RawMessage) error {
	var payload MovePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.TransactionID) == "" {
		return errors.New("transaction_id is required")
	}
	if payload.Amount <= 0 {
		return errors.New("amount must be greater than zero")
	}
	return nil
}

func validateTransactionPayload(raw json.RawMessage) error {
	var payload TransactionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.TransactionID) == "" {
		return errors.New("transaction_id is required")
	}
	return nil
}
