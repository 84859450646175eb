package workflow

// Status is the workflow lifecycle position.
type Status string

const (
	StatusCreated   Status = "created"
	StatusInitiated Status = "initiated"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Step names a position in the step program.
type Step string

const (
	StepInitiateTransfer Step = "initiate-transfer"
	StepExecute          Step = "execute"
	StepCancel           Step = "cancel"
	// StepEnded marks a workflow with no step left to run.
	StepEnded Step = ""
)

// Transfer is the funds movement a workflow drives.
type Transfer struct {
	Amount       int64  `json:"amount"`
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
}

// State captures replayed workflow state.
type State struct {
	Started    bool     `json:"started"`
	WorkflowID string   `json:"workflow_id"`
	Transfer   Transfer `json:"transfer"`
	Status     Status   `json:"status"`
	// ResumeStatus holds the status to restore when a paused step is re-entered.
	ResumeStatus Status `json:"resume_status,omitempty"`
	Step         Step   `json:"step"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"last_error,omitempty"`
}

// Ended reports whether the workflow reached a terminal step.
func (s State) Ended() bool {
	return s.Started && s.Step == StepEnded
}

// Participants returns the wallet ids in call order.
func (t Transfer) Participants() []string {
	return []string{t.FromWalletID, t.ToWalletID}
}
