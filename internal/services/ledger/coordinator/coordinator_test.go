package coordinator

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transfer"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transferid"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
)

type fakeSagas struct {
	initID       string
	participants []string
	state        transfer.State
	err          error
}

func (f *fakeSagas) Init(_ context.Context, transferID string, participantIDs []string) (transfer.State, error) {
	f.initID = transferID
	f.participants = participantIDs
	if f.err != nil {
		return transfer.State{}, f.err
	}
	f.state = transfer.State{
		Created:    true,
		TransferID: transferID,
		Status:     transfer.StatusPending,
		Participants: map[string]transfer.Participant{
			participantIDs[0]: {},
			participantIDs[1]: {},
		},
	}
	return f.state, nil
}

func (f *fakeSagas) State(_ context.Context, transferID string) (transfer.State, error) {
	if f.state.TransferID != transferID {
		return transfer.State{}, apperrors.New(apperrors.CodeNotFound, "missing")
	}
	return f.state, nil
}

type fakeWallets struct {
	calls       []string
	withdrawErr error
}

func (f *fakeWallets) Deposit(_ context.Context, walletID string, _ int64, txID string) (wallet.State, error) {
	f.calls = append(f.calls, "deposit:"+walletID+":"+txID)
	return wallet.State{}, nil
}

func (f *fakeWallets) Withdraw(_ context.Context, walletID string, _ int64, txID string) (wallet.State, error) {
	f.calls = append(f.calls, "withdraw:"+walletID+":"+txID)
	return wallet.State{}, f.withdrawErr
}

func TestChoreographyStart(t *testing.T) {
	sagas := &fakeSagas{}
	wallets := &fakeWallets{withdrawErr: apperrors.New(apperrors.CodeInsufficientFunds, "insufficient balance")}
	c := NewChoreography(sagas, wallets)

	status, err := c.Start(context.Background(), "t1", Transfer{Amount: 30, FromWalletID: "A", ToWalletID: "B"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sagas.initID != "m:t1" {
		t.Fatalf("init id = %q, want m:t1", sagas.initID)
	}
	if len(wallets.calls) != 2 || wallets.calls[0] != "withdraw:A:m:t1" || wallets.calls[1] != "deposit:B:m:t1" {
		t.Fatalf("wallet calls = %v", wallets.calls)
	}
	if status.Mode != transferid.ModeSaga || status.Status != string(transfer.StatusPending) {
		t.Fatalf("status = %+v, want pending saga", status)
	}
	if status.Amount != 30 || len(status.Participants) != 2 || status.Participants[0].WalletID != "A" {
		t.Fatalf("status = %+v, want amount 30 over A and B", status)
	}

	again, err := c.Status(context.Background(), "m:t1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if again.ID != "m:t1" {
		t.Fatalf("status id = %q, want m:t1", again.ID)
	}
}

func TestChoreographyStartInitFailure(t *testing.T) {
	sagas := &fakeSagas{err: apperrors.New(apperrors.CodeConflict, "already initiated")}
	wallets := &fakeWallets{}
	c := NewChoreography(sagas, wallets)
	_, err := c.Start(context.Background(), "t1", Transfer{Amount: 30, FromWalletID: "A", ToWalletID: "B"})
	if got := apperrors.CodeOf(err); got != apperrors.CodeConflict {
		t.Fatalf("code = %s, want %s", got, apperrors.CodeConflict)
	}
	if len(wallets.calls) != 0 {
		t.Fatalf("wallet calls = %v, want none", wallets.calls)
	}
}

func TestTransferValidate(t *testing.T) {
	tests := []struct {
		name string
		t    Transfer
		ok   bool
	}{
		{name: "valid", t: Transfer{Amount: 1, FromWalletID: "A", ToWalletID: "B"}, ok: true},
		{name: "zero amount", t: Transfer{FromWalletID: "A", ToWalletID: "B"}},
		{name: "negative amount", t: Transfer{Amount: -5, FromWalletID: "A", ToWalletID: "B"}},
		{name: "missing from", t: Transfer{Amount: 1, ToWalletID: "B"}},
		{name: "same wallet", t: Transfer{Amount: 1, FromWalletID: "A", ToWalletID: "A"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.t.Validate()
			if tc.ok && err != nil {
				t.Fatalf("validate: %v", err)
			}
			if !tc.ok && apperrors.CodeOf(err) != apperrors.CodeValidation {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

type fakeWorkflows struct {
	started map[string]workflow.State
	err     error
}

func (f *fakeWorkflows) StartTransfer(_ context.Context, workflowID string, t workflow.Transfer) (workflow.State, error) {
	if f.err != nil {
		return workflow.State{}, f.err
	}
	state := workflow.State{
		Started:    true,
		WorkflowID: workflowID,
		Transfer:   t,
		Status:     workflow.StatusCreated,
		Step:       workflow.StepInitiateTransfer,
	}
	f.started[workflowID] = state
	return state, nil
}

func (f *fakeWorkflows) GetState(_ context.Context, workflowID string) (workflow.State, error) {
	state, ok := f.started[workflowID]
	if !ok {
		return workflow.State{}, apperrors.New(apperrors.CodeNotFound, "missing")
	}
	return state, nil
}

func TestOrchestrationStart(t *testing.T) {
	workflows := &fakeWorkflows{started: map[string]workflow.State{}}
	o := NewOrchestration(workflows)

	status, err := o.Start(context.Background(), "t1", Transfer{Amount: 15, FromWalletID: "A", ToWalletID: "B"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if status.ID != "w:t1" || status.Mode != transferid.ModeWorkflow {
		t.Fatalf("status = %+v, want workflow w:t1", status)
	}
	if status.Step != string(workflow.StepInitiateTransfer) || status.Amount != 15 {
		t.Fatalf("status = %+v, want initiate-transfer for 15", status)
	}

	if _, err := o.Status(context.Background(), "w:t1"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := o.Status(context.Background(), "t2"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("status err = %v, want not found", err)
	}
}

func TestOrchestrationStartPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	o := NewOrchestration(&fakeWorkflows{err: boom})
	if _, err := o.Start(context.Background(), "t1", Transfer{Amount: 1, FromWalletID: "A", ToWalletID: "B"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestStartRejectsBlankID(t *testing.T) {
	sagas := &fakeSagas{}
	wallets := &fakeWallets{}
	workflows := &fakeWorkflows{started: map[string]workflow.State{}}
	coordinators := map[string]TransferCoordinator{
		"choreography":  NewChoreography(sagas, wallets),
		"orchestration": NewOrchestration(workflows),
	}
	for name, c := range coordinators {
		t.Run(name, func(t *testing.T) {
			_, err := c.Start(context.Background(), "  ", Transfer{Amount: 5, FromWalletID: "A", ToWalletID: "B"})
			if apperrors.CodeOf(err) != apperrors.CodeValidation {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
	if sagas.initID != "" || len(wallets.calls) != 0 || len(workflows.started) != 0 {
		t.Fatalf("blank id reached the aggregates: saga=%q wallets=%v workflows=%v", sagas.initID, wallets.calls, workflows.started)
	}
}
