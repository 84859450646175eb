package workflow

// StartPayload captures workflow.start commands and workflow.started events.
type StartPayload struct {
	Transfer Transfer `json:"transfer"`
}

// StepFailedPayload captures workflow.step.fail commands and workflow.step_failed events.
type StepFailedPayload struct {
	Step  Step   `json:"step"`
	Error string `json:"error,omitempty"`
}

// StepPayload identifies the step a command or event applies to.
type StepPayload struct {
	Step Step `json:"step"`
}

// FailedOverPayload captures workflow.fail_over commands and workflow.failed_over events.
type FailedOverPayload struct {
	From   Step   `json:"from"`
	To     Step   `json:"to"`
	Reason string `json:"reason,omitempty"`
}
