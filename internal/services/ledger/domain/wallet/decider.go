package wallet

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// AggregateType names wallet streams.
const AggregateType = "wallet"

const (
	CommandTypeCreate   command.Type = "wallet.create"
	CommandTypeDeposit  command.Type = "wallet.deposit"
	CommandTypeWithdraw command.Type = "wallet.withdraw"
	CommandTypeExecute  command.Type = "wallet.transaction.execute"
	CommandTypeComplete command.Type = "wallet.transaction.complete"
	CommandTypeCancel   command.Type = "wallet.transaction.cancel"

	EventTypeCreated              event.Type = "wallet.created"
	EventTypeDepositInitiated     event.Type = "wallet.deposit_initiated"
	EventTypeWithdrawInitiated    event.Type = "wallet.withdraw_initiated"
	EventTypeDeposited            event.Type = "wallet.deposited"
	EventTypeWithdrawn            event.Type = "wallet.withdrawn"
	EventTypeTransactionCancelled event.Type = "wallet.transaction_cancelled"
	EventTypeTransactionCompleted event.Type = "wallet.transaction_completed"

	RejectionCodeWalletNotFound    = "WALLET_NOT_FOUND"
	RejectionCodeInsufficientFunds = "WALLET_INSUFFICIENT_FUNDS"
	RejectionCodeAmountInvalid     = "WALLET_AMOUNT_INVALID"
	RejectionCodeTransactionIDNeed = "WALLET_TRANSACTION_ID_REQUIRED"
)

// Decide returns the decision for a wallet command against current state.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	if cmd.Type == CommandTypeCreate {
		if state.Created {
			return command.Noop()
		}
		payloadJSON, _ := json.Marshal(CreatePayload{WalletID: cmd.AggregateID})
		return command.Accept(command.NewEvent(cmd, EventTypeCreated, payloadJSON, now().UTC()))
	}

	if cmd.Type == CommandTypeDeposit || cmd.Type == CommandTypeWithdraw {
		if !state.Created {
			return rejectNotFound(cmd.AggregateID)
		}
		var payload MovePayload
		_ = json.Unmarshal(cmd.PayloadJSON, &payload)
		payload.TransactionID = strings.TrimSpace(payload.TransactionID)
		if payload.TransactionID == "" {
			return command.Reject(command.Rejection{Code: RejectionCodeTransactionIDNeed, Kind: command.KindValidation, Message: "transaction id is required"})
		}
		if state.AlreadySeen(payload.TransactionID) {
			return command.Noop()
		}
		if payload.Amount <= 0 {
			return command.Reject(command.Rejection{Code: RejectionCodeAmountInvalid, Kind: command.KindValidation, Message: "amount must be greater than zero"})
		}
		eventType := EventTypeDepositInitiated
		if cmd.Type == CommandTypeWithdraw {
			if state.Balance < payload.Amount {
				return command.Reject(command.Rejection{Code: RejectionCodeInsufficientFunds, Kind: command.KindInsufficientFunds, Message: "insufficient balance"})
			}
			eventType = EventTypeWithdrawInitiated
		}
		payloadJSON, _ := json.Marshal(payload)
		return command.Accept(command.NewEvent(cmd, eventType, payloadJSON, now().UTC()))
	}

	if cmd.Type == CommandTypeExecute {
		txID := transactionID(cmd)
		if !state.Created || !state.IsPending(txID) {
			return command.Noop()
		}
		tx := state.Pending[txID]
		eventType := EventTypeDeposited
		if tx.Kind == KindWithdraw {
			eventType = EventTypeWithdrawn
		}
		payloadJSON, _ := json.Marshal(MovePayload{Amount: tx.Amount, TransactionID: txID})
		return command.Accept(command.NewEvent(cmd, eventType, payloadJSON, now().UTC()))
	}

	if cmd.Type == CommandTypeComplete {
		txID := transactionID(cmd)
		if !state.Created || !state.IsExecuted(txID) {
			return command.Noop()
		}
		payloadJSON, _ := json.Marshal(TransactionPayload{TransactionID: txID})
		return command.Accept(command.NewEvent(cmd, EventTypeTransactionCompleted, payloadJSON, now().UTC()))
	}

	if cmd.Type == CommandTypeCancel {
		txID := transactionID(cmd)
		if !state.Created || !state.IsPending(txID) {
			return command.Noop()
		}
		tx := state.Pending[txID]
		payloadJSON, _ := json.Marshal(CancelledPayload{TransactionID: txID, Amount: tx.Amount, Kind: tx.Kind})
		return command.Accept(command.NewEvent(cmd, EventTypeTransactionCancelled, payloadJSON, now().UTC()))
	}

	return command.Reject(command.Rejection{
		Code:    "COMMAND_TYPE_UNSUPPORTED",
		Kind:    command.KindValidation,
		Message: "command type is not supported by wallet decider",
	})
}

func transactionID(cmd command.Command) string {
	var payload TransactionPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	return strings.TrimSpace(payload.TransactionID)
}

func rejectNotFound(walletID string) command.Decision {
	return command.Reject(command.Rejection{
		Code:    RejectionCodeWalletNotFound,
		Kind:    command.KindNotFound,
		Message: "wallet [" + walletID + "] does not exist",
	})
}

// Decider adapts Decide to the engine's untyped state.
type Decider struct{}

// Decide implements engine.Decider.
func (Decider) Decide(state any, cmd command.Command, now func() time.Time) command.Decision {
	current, _ := AssertState(state)
	return Decide(current, cmd, now)
}
