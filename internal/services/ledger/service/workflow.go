package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
)

// Workflows runs workflow aggregate commands and queries for the orchestrator.
type Workflows struct {
	dispatcher *Dispatcher
}

// NewWorkflows builds the workflow service.
func NewWorkflows(dispatcher *Dispatcher) *Workflows {
	return &Workflows{dispatcher: dispatcher}
}

// Start records a new workflow for t.
func (w *Workflows) Start(ctx context.Context, workflowID string, t workflow.Transfer) (workflow.State, error) {
	return w.execute(ctx, workflowID, workflow.CommandTypeStart, workflow.StartPayload{Transfer: t})
}

// Initiate records that both wallets reserved the transfer.
func (w *Workflows) Initiate(ctx context.Context, workflowID string) (workflow.State, error) {
	return w.execute(ctx, workflowID, workflow.CommandTypeInitiate, nil)
}

// FailStep records a failed attempt of step and pauses the workflow.
func (w *Workflows) FailStep(ctx context.Context, workflowID string, step workflow.Step, cause error) (workflow.State, error) {
	payload := workflow.StepFailedPayload{Step: step}
	if cause != nil {
		payload.Error = cause.Error()
	}
	return w.execute(ctx, workflowID, workflow.CommandTypeFailStep, payload)
}

// ResumeStep restores the logical status of a paused workflow.
func (w *Workflows) ResumeStep(ctx context.Context, workflowID string) (workflow.State, error) {
	return w.execute(ctx, workflowID, workflow.CommandTypeResumeStep, nil)
}

// FailOver moves a workflow whose initiation exhausted its retries to the cancel step.
func (w *Workflows) FailOver(ctx context.Context, workflowID, reason string) (workflow.State, error) {
	return w.execute(ctx, workflowID, workflow.CommandTypeFailOver, workflow.FailedOverPayload{Reason: reason})
}

// Complete ends a workflow after execution.
func (w *Workflows) Complete(ctx context.Context, workflowID string) (workflow.State, error) {
	return w.execute(ctx, workflowID, workflow.CommandTypeComplete, nil)
}

// Cancel ends a workflow after compensation.
func (w *Workflows) Cancel(ctx context.Context, workflowID string) (workflow.State, error) {
	return w.execute(ctx, workflowID, workflow.CommandTypeCancel, nil)
}

// State returns the workflow state or NOT_FOUND.
func (w *Workflows) State(ctx context.Context, workflowID string) (workflow.State, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return workflow.State{}, apperrors.New(apperrors.CodeValidation, "workflow id is required")
	}
	raw, _, err := w.dispatcher.Load(ctx, workflow.AggregateType, workflowID)
	if err != nil {
		return workflow.State{}, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	state, err := workflow.AssertState(raw)
	if err != nil {
		return workflow.State{}, err
	}
	if !state.Started {
		return workflow.State{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			"workflow ["+workflowID+"] was never started",
			map[string]string{"rejection": workflow.RejectionCodeWorkflowMissing})
	}
	return state, nil
}

func (w *Workflows) execute(ctx context.Context, workflowID string, cmdType command.Type, payload any) (workflow.State, error) {
	cmd := command.Command{
		AggregateType: workflow.AggregateType,
		AggregateID:   workflowID,
		Type:          cmdType,
	}
	if payload != nil {
		cmd.PayloadJSON = marshalPayload(payload)
	}
	result, err := w.dispatcher.Execute(ctx, cmd)
	if err != nil {
		return workflow.State{}, err
	}
	return workflow.AssertState(result.State)
}
