package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transfer"
)

// Transfers runs choreography saga commands and queries.
type Transfers struct {
	dispatcher *Dispatcher
}

// NewTransfers builds the saga service.
func NewTransfers(dispatcher *Dispatcher) *Transfers {
	return &Transfers{dispatcher: dispatcher}
}

// Init creates a pending saga over participantIDs. Re-initializing a pending saga
// is a no-op; an initiated or resolved saga is a CONFLICT.
func (t *Transfers) Init(ctx context.Context, transferID string, participantIDs []string) (transfer.State, error) {
	return t.execute(ctx, transferID, transfer.CommandTypeInit, transfer.InitPayload{ParticipantIDs: participantIDs})
}

// Join records that walletID reserved its side of the transfer.
func (t *Transfers) Join(ctx context.Context, transferID, walletID string) (transfer.State, error) {
	return t.execute(ctx, transferID, transfer.CommandTypeParticipantJoin, transfer.ParticipantPayload{WalletID: walletID})
}

// Execute records that walletID applied its side of the transfer. Executions
// arriving after the saga was cancelled are ignored and logged.
func (t *Transfers) Execute(ctx context.Context, transferID, walletID string) (transfer.State, error) {
	state, err := t.execute(ctx, transferID, transfer.CommandTypeParticipantExecute, transfer.ParticipantPayload{WalletID: walletID})
	if err != nil {
		return transfer.State{}, err
	}
	if state.Status == transfer.StatusCancelled {
		log.Printf("transfer anomaly: participant %s executed on cancelled transfer %s", walletID, transferID)
	}
	return state, nil
}

// Cancel cancels a pending saga. It is a no-op once the saga is initiated or resolved.
func (t *Transfers) Cancel(ctx context.Context, transferID, reason string) (transfer.State, error) {
	return t.execute(ctx, transferID, transfer.CommandTypeCancel, transfer.CancelPayload{Reason: reason})
}

// State returns the saga state or NOT_FOUND.
func (t *Transfers) State(ctx context.Context, transferID string) (transfer.State, error) {
	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		return transfer.State{}, apperrors.New(apperrors.CodeValidation, "transfer id is required")
	}
	raw, _, err := t.dispatcher.Load(ctx, transfer.AggregateType, transferID)
	if err != nil {
		return transfer.State{}, fmt.Errorf("load transfer %s: %w", transferID, err)
	}
	state, err := transfer.AssertState(raw)
	if err != nil {
		return transfer.State{}, err
	}
	if !state.Created {
		return transfer.State{}, apperrors.New(apperrors.CodeNotFound, "transfer ["+transferID+"] does not exist")
	}
	return state, nil
}

func (t *Transfers) execute(ctx context.Context, transferID string, cmdType command.Type, payload any) (transfer.State, error) {
	result, err := t.dispatcher.Execute(ctx, command.Command{
		AggregateType: transfer.AggregateType,
		AggregateID:   transferID,
		Type:          cmdType,
		PayloadJSON:   marshalPayload(payload),
	})
	if err != nil {
		return transfer.State{}, err
	}
	return transfer.AssertState(result.State)
}
