package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
)

// WalletStatus is the caller-facing wallet view including open reservations.
type WalletStatus struct {
	WalletID            string
	Balance             int64
	ReservedFunds       int64
	PendingTransactions []wallet.Transaction
}

// Wallets runs wallet ledger commands and queries.
type Wallets struct {
	dispatcher *Dispatcher
	newID      func() string
}

// NewWallets builds the wallet service.
func NewWallets(dispatcher *Dispatcher) *Wallets {
	return &Wallets{dispatcher: dispatcher, newID: uuid.NewString}
}

// Create creates the wallet if absent. Creating an existing wallet is a no-op.
func (w *Wallets) Create(ctx context.Context, walletID string) (wallet.State, error) {
	return w.execute(ctx, walletID, wallet.CommandTypeCreate, wallet.CreatePayload{WalletID: walletID})
}

// Deposit reserves an incoming amount under txID.
func (w *Wallets) Deposit(ctx context.Context, walletID string, amount int64, txID string) (wallet.State, error) {
	return w.execute(ctx, walletID, wallet.CommandTypeDeposit, wallet.MovePayload{Amount: amount, TransactionID: txID})
}

// Withdraw reserves an outgoing amount under txID, subtracting it from the balance.
func (w *Wallets) Withdraw(ctx context.Context, walletID string, amount int64, txID string) (wallet.State, error) {
	return w.execute(ctx, walletID, wallet.CommandTypeWithdraw, wallet.MovePayload{Amount: amount, TransactionID: txID})
}

// ExecuteTransaction applies a pending transaction.
func (w *Wallets) ExecuteTransaction(ctx context.Context, walletID, txID string) (wallet.State, error) {
	return w.execute(ctx, walletID, wallet.CommandTypeExecute, wallet.TransactionPayload{TransactionID: txID})
}

// CompleteTransaction finalizes an executed transaction.
func (w *Wallets) CompleteTransaction(ctx context.Context, walletID, txID string) (wallet.State, error) {
	return w.execute(ctx, walletID, wallet.CommandTypeComplete, wallet.TransactionPayload{TransactionID: txID})
}

// CancelTransaction releases a pending transaction.
func (w *Wallets) CancelTransaction(ctx context.Context, walletID, txID string) (wallet.State, error) {
	return w.execute(ctx, walletID, wallet.CommandTypeCancel, wallet.TransactionPayload{TransactionID: txID})
}

// Fund creates the wallet if needed and settles an initial deposit of amount.
// A zero amount only creates the wallet.
func (w *Wallets) Fund(ctx context.Context, walletID string, amount int64) (wallet.State, error) {
	state, err := w.Create(ctx, walletID)
	if err != nil {
		return wallet.State{}, err
	}
	if amount == 0 {
		return state, nil
	}
	return w.SettledDeposit(ctx, walletID, amount)
}

// SettledDeposit deposits, executes and completes amount under a fresh transaction id.
func (w *Wallets) SettledDeposit(ctx context.Context, walletID string, amount int64) (wallet.State, error) {
	txID := w.newID()
	if _, err := w.Deposit(ctx, walletID, amount, txID); err != nil {
		return wallet.State{}, err
	}
	return w.settle(ctx, walletID, txID)
}

// SettledWithdraw withdraws, executes and completes amount under a fresh transaction id.
func (w *Wallets) SettledWithdraw(ctx context.Context, walletID string, amount int64) (wallet.State, error) {
	txID := w.newID()
	if _, err := w.Withdraw(ctx, walletID, amount, txID); err != nil {
		return wallet.State{}, err
	}
	return w.settle(ctx, walletID, txID)
}

func (w *Wallets) settle(ctx context.Context, walletID, txID string) (wallet.State, error) {
	if _, err := w.ExecuteTransaction(ctx, walletID, txID); err != nil {
		return wallet.State{}, err
	}
	return w.CompleteTransaction(ctx, walletID, txID)
}

// State returns the wallet state or NOT_FOUND.
func (w *Wallets) State(ctx context.Context, walletID string) (wallet.State, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return wallet.State{}, apperrors.New(apperrors.CodeValidation, "wallet id is required")
	}
	raw, _, err := w.dispatcher.Load(ctx, wallet.AggregateType, walletID)
	if err != nil {
		return wallet.State{}, fmt.Errorf("load wallet %s: %w", walletID, err)
	}
	state, err := wallet.AssertState(raw)
	if err != nil {
		return wallet.State{}, err
	}
	if !state.Created {
		return wallet.State{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			"wallet ["+walletID+"] does not exist",
			map[string]string{"rejection": wallet.RejectionCodeWalletNotFound})
	}
	return state, nil
}

// Balance returns the wallet's available balance.
func (w *Wallets) Balance(ctx context.Context, walletID string) (int64, error) {
	state, err := w.State(ctx, walletID)
	if err != nil {
		return 0, err
	}
	return state.Balance, nil
}

// Status returns the balance, reserved funds and pending transactions.
func (w *Wallets) Status(ctx context.Context, walletID string) (WalletStatus, error) {
	state, err := w.State(ctx, walletID)
	if err != nil {
		return WalletStatus{}, err
	}
	return WalletStatus{
		WalletID:            state.WalletID,
		Balance:             state.Balance,
		ReservedFunds:       state.ReservedFunds(),
		PendingTransactions: state.PendingTransactions(),
	}, nil
}

func (w *Wallets) execute(ctx context.Context, walletID string, cmdType command.Type, payload any) (wallet.State, error) {
	result, err := w.dispatcher.Execute(ctx, command.Command{
		AggregateType: wallet.AggregateType,
		AggregateID:   walletID,
		Type:          cmdType,
		PayloadJSON:   marshalPayload(payload),
	})
	if err != nil {
		return wallet.State{}, err
	}
	return wallet.AssertState(result.State)
}
