// Package coordinator exposes the choreographed saga and the orchestrated
// workflow behind one transfer interface.
package coordinator

import (
	"context"
	"log"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transfer"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transferid"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
)

// Transfer moves Amount from one wallet to another.
type Transfer struct {
	Amount       int64  `json:"amount"`
	FromWalletID string `json:"from"`
	ToWalletID   string `json:"to"`
}

// Validate checks the fields both coordinators require.
func (t Transfer) Validate() error {
	if t.Amount <= 0 {
		return apperrors.New(apperrors.CodeValidation, "amount must be greater than zero")
	}
	from := strings.TrimSpace(t.FromWalletID)
	to := strings.TrimSpace(t.ToWalletID)
	if from == "" || to == "" {
		return apperrors.New(apperrors.CodeValidation, "from and to wallets are required")
	}
	if from == to {
		return apperrors.New(apperrors.CodeValidation, "from and to wallets must differ")
	}
	return nil
}

// Participant is one wallet's progress in a transfer.
type Participant struct {
	WalletID string `json:"walletId"`
	Joined   bool   `json:"joined"`
	Executed bool   `json:"executed"`
}

// TransferStatus is the mode-independent view of a transfer.
type TransferStatus struct {
	ID           string          `json:"id"`
	Mode         transferid.Mode `json:"mode"`
	Status       string          `json:"status"`
	Step         string          `json:"step,omitempty"`
	Amount       int64           `json:"amount,omitempty"`
	FromWalletID string          `json:"from,omitempty"`
	ToWalletID   string          `json:"to,omitempty"`
	Participants []Participant   `json:"participants,omitempty"`
	Attempts     int             `json:"attempts,omitempty"`
	LastError    string          `json:"lastError,omitempty"`
}

// TransferCoordinator starts transfers and reports their status.
type TransferCoordinator interface {
	Start(ctx context.Context, id string, t Transfer) (TransferStatus, error)
	Status(ctx context.Context, id string) (TransferStatus, error)
}

// Sagas is the saga command surface.
type Sagas interface {
	Init(ctx context.Context, transferID string, participantIDs []string) (transfer.State, error)
	State(ctx context.Context, transferID string) (transfer.State, error)
}

// Wallets reserves funds under a transaction id.
type Wallets interface {
	Deposit(ctx context.Context, walletID string, amount int64, txID string) (wallet.State, error)
	Withdraw(ctx context.Context, walletID string, amount int64, txID string) (wallet.State, error)
}

// Choreography runs transfers as sagas driven by event reactions.
type Choreography struct {
	sagas   Sagas
	wallets Wallets
}

var _ TransferCoordinator = (*Choreography)(nil)

// NewChoreography builds the saga coordinator.
func NewChoreography(sagas Sagas, wallets Wallets) *Choreography {
	return &Choreography{sagas: sagas, wallets: wallets}
}

// Start initializes the saga and reserves both wallets under its id. Failures
// after the saga exists are logged; the saga timeout compensates them.
func (c *Choreography) Start(ctx context.Context, id string, t Transfer) (TransferStatus, error) {
	if err := t.Validate(); err != nil {
		return TransferStatus{}, err
	}
	bare, err := requireID(id)
	if err != nil {
		return TransferStatus{}, err
	}
	sagaID := transferid.ForSaga(bare)
	state, err := c.sagas.Init(ctx, sagaID, []string{t.FromWalletID, t.ToWalletID})
	if err != nil {
		return TransferStatus{}, err
	}
	if _, err := c.wallets.Withdraw(ctx, t.FromWalletID, t.Amount, sagaID); err != nil {
		log.Printf("saga withdraw failed id=%s wallet=%s err=%v", sagaID, t.FromWalletID, err)
	}
	if _, err := c.wallets.Deposit(ctx, t.ToWalletID, t.Amount, sagaID); err != nil {
		log.Printf("saga deposit failed id=%s wallet=%s err=%v", sagaID, t.ToWalletID, err)
	}
	status := sagaStatus(state)
	status.Amount = t.Amount
	status.FromWalletID = t.FromWalletID
	status.ToWalletID = t.ToWalletID
	return status, nil
}

// Status returns the saga state.
func (c *Choreography) Status(ctx context.Context, id string) (TransferStatus, error) {
	state, err := c.sagas.State(ctx, transferid.ForSaga(strings.TrimSpace(id)))
	if err != nil {
		return TransferStatus{}, err
	}
	return sagaStatus(state), nil
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.New(apperrors.CodeValidation, "transfer id is required")
	}
	return id, nil
}

func sagaStatus(state transfer.State) TransferStatus {
	participants := make([]Participant, 0, len(state.Participants))
	for walletID, p := range state.Participants {
		participants = append(participants, Participant{WalletID: walletID, Joined: p.Joined, Executed: p.Executed})
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].WalletID < participants[j].WalletID })
	return TransferStatus{
		ID:           state.TransferID,
		Mode:         transferid.ModeSaga,
		Status:       string(state.Status),
		Participants: participants,
	}
}

// Workflows starts and reads orchestrated workflows.
type Workflows interface {
	StartTransfer(ctx context.Context, workflowID string, t workflow.Transfer) (workflow.State, error)
	GetState(ctx context.Context, workflowID string) (workflow.State, error)
}

// Orchestration runs transfers as orchestrated workflows.
type Orchestration struct {
	workflows Workflows
}

var _ TransferCoordinator = (*Orchestration)(nil)

// NewOrchestration builds the workflow coordinator.
func NewOrchestration(workflows Workflows) *Orchestration {
	return &Orchestration{workflows: workflows}
}

// Start records the workflow and schedules its runner.
func (o *Orchestration) Start(ctx context.Context, id string, t Transfer) (TransferStatus, error) {
	if err := t.Validate(); err != nil {
		return TransferStatus{}, err
	}
	bare, err := requireID(id)
	if err != nil {
		return TransferStatus{}, err
	}
	state, err := o.workflows.StartTransfer(ctx, transferid.ForWorkflow(bare), workflow.Transfer{
		Amount:       t.Amount,
		FromWalletID: t.FromWalletID,
		ToWalletID:   t.ToWalletID,
	})
	if err != nil {
		return TransferStatus{}, err
	}
	return workflowStatus(state), nil
}

// Status returns the workflow state.
func (o *Orchestration) Status(ctx context.Context, id string) (TransferStatus, error) {
	state, err := o.workflows.GetState(ctx, transferid.ForWorkflow(strings.TrimSpace(id)))
	if err != nil {
		return TransferStatus{}, err
	}
	return workflowStatus(state), nil
}

func workflowStatus(state workflow.State) TransferStatus {
	return TransferStatus{
		ID:           state.WorkflowID,
		Mode:         transferid.ModeWorkflow,
		Status:       string(state.Status),
		Step:         string(state.Step),
		Amount:       state.Transfer.Amount,
		FromWalletID: state.Transfer.FromWalletID,
		ToWalletID:   state.Transfer.ToWalletID,
		Attempts:     state.Attempts,
		LastError:    state.LastError,
	}
}
