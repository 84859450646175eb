package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
	"github.com/louisbranch/walletsaga/internal/services/ledger/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	tracerName = "github.com/louisbranch/walletsaga/internal/services/ledger/orchestrator"

	defaultStepRetries    = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
)

// Workflows is the workflow aggregate surface the runner drives.
type Workflows interface {
	Start(ctx context.Context, workflowID string, t workflow.Transfer) (workflow.State, error)
	State(ctx context.Context, workflowID string) (workflow.State, error)
	Initiate(ctx context.Context, workflowID string) (workflow.State, error)
	FailStep(ctx context.Context, workflowID string, step workflow.Step, cause error) (workflow.State, error)
	ResumeStep(ctx context.Context, workflowID string) (workflow.State, error)
	FailOver(ctx context.Context, workflowID, reason string) (workflow.State, error)
	Complete(ctx context.Context, workflowID string) (workflow.State, error)
	Cancel(ctx context.Context, workflowID string) (workflow.State, error)
}

// Wallets is the wallet command surface the steps call.
type Wallets interface {
	Deposit(ctx context.Context, walletID string, amount int64, txID string) (wallet.State, error)
	Withdraw(ctx context.Context, walletID string, amount int64, txID string) (wallet.State, error)
	ExecuteTransaction(ctx context.Context, walletID, txID string) (wallet.State, error)
	CancelTransaction(ctx context.Context, walletID, txID string) (wallet.State, error)
}

// OpenStreams lists aggregates without a terminal event.
type OpenStreams interface {
	ListOpenStreams(ctx context.Context, aggregateType string, terminalTypes ...event.Type) ([]string, error)
}

// StepObserver receives step outcomes.
type StepObserver interface {
	ObserveStep(step string, failed bool, elapsed time.Duration)
}

// Config controls step retries.
type Config struct {
	// StepRetries is the number of initiate-transfer attempts before failing over.
	StepRetries    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) normalized() Config {
	if c.StepRetries <= 0 {
		c.StepRetries = defaultStepRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// Orchestrator starts workflows and runs one step runner per open workflow.
type Orchestrator struct {
	workflows Workflows
	wallets   Wallets
	open      OpenStreams
	config    Config
	observer  StepObserver

	mu      sync.Mutex
	base    context.Context
	stopped bool
	running map[string]struct{}
	wg      sync.WaitGroup
}

// New builds an orchestrator. open may be nil when no durable log backs it.
func New(workflows Workflows, wallets Wallets, open OpenStreams, config Config) *Orchestrator {
	return &Orchestrator{
		workflows: workflows,
		wallets:   wallets,
		open:      open,
		config:    config.normalized(),
		base:      context.Background(),
		running:   make(map[string]struct{}),
	}
}

// WithObserver attaches a step observer.
func (o *Orchestrator) WithObserver(observer StepObserver) *Orchestrator {
	o.observer = observer
	return o
}

// StartTransfer records a new workflow and schedules its runner. A workflow
// started while the orchestrator is stopping runs on the next Resume.
func (o *Orchestrator) StartTransfer(ctx context.Context, workflowID string, t workflow.Transfer) (workflow.State, error) {
	workflowID = strings.TrimSpace(workflowID)
	ctx = service.WithOrigin(ctx, service.Origin{
		ActorType:     command.ActorTypeWorkflow,
		ActorID:       workflowID,
		CorrelationID: workflowID,
	})
	state, err := o.workflows.Start(ctx, workflowID, t)
	if err != nil {
		return workflow.State{}, err
	}
	o.launch(workflowID)
	return state, nil
}

// GetState returns the workflow state or NOT_FOUND.
func (o *Orchestrator) GetState(ctx context.Context, workflowID string) (workflow.State, error) {
	return o.workflows.State(ctx, workflowID)
}

// Run resumes open workflows and keeps runners alive until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.base = ctx
	o.mu.Unlock()

	resumed, err := o.Resume(ctx)
	if err != nil {
		return err
	}
	if resumed > 0 {
		log.Printf("orchestrator resumed workflows=%d", resumed)
	}
	<-ctx.Done()

	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.wg.Wait()
	return nil
}

// Resume launches a runner for every workflow without a terminal event.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	if o.open == nil {
		return 0, nil
	}
	ids, err := o.open.ListOpenStreams(ctx, workflow.AggregateType, workflow.EventTypeCompleted, workflow.EventTypeCancelled)
	if err != nil {
		return 0, fmt.Errorf("list open workflows: %w", err)
	}
	launched := 0
	for _, id := range ids {
		if o.launch(id) {
			launched++
		}
	}
	return launched, nil
}

// Wait blocks until every launched runner returns.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// launch starts a runner for workflowID unless one is already running.
func (o *Orchestrator) launch(workflowID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return false
	}
	if _, ok := o.running[workflowID]; ok {
		return false
	}
	o.running[workflowID] = struct{}{}
	base := o.base
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.running, workflowID)
			o.mu.Unlock()
		}()
		if err := o.Drive(base, workflowID); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("workflow runner stopped id=%s err=%v", workflowID, err)
		}
	}()
	return true
}

// Drive runs workflowID's steps until it ends or ctx is done.
func (o *Orchestrator) Drive(ctx context.Context, workflowID string) error {
	ctx = service.WithOrigin(ctx, service.Origin{
		ActorType:     command.ActorTypeWorkflow,
		ActorID:       workflowID,
		CorrelationID: workflowID,
	})
	policy := o.newBackOff()
	lastStep := workflow.StepEnded
	for {
		state, err := o.workflows.State(ctx, workflowID)
		if err != nil {
			return err
		}
		if state.Ended() {
			return nil
		}
		if state.Step != lastStep {
			policy.Reset()
			lastStep = state.Step
		}
		if state.Status == workflow.StatusPaused {
			if _, err := o.workflows.ResumeStep(ctx, workflowID); err != nil {
				return err
			}
		}

		stepErr := o.runStep(ctx, state)
		if stepErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("workflow step failed id=%s step=%s attempt=%d err=%v", workflowID, state.Step, state.Attempts+1, stepErr)
		failed, err := o.workflows.FailStep(ctx, workflowID, state.Step, stepErr)
		if err != nil {
			return err
		}
		if failed.Step == workflow.StepInitiateTransfer && failed.Attempts >= o.config.StepRetries {
			if _, err := o.workflows.FailOver(ctx, workflowID, stepErr.Error()); err != nil {
				return err
			}
			continue
		}
		if err := sleep(ctx, policy.NextBackOff()); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.config.InitialBackoff
	policy.MaxInterval = o.config.MaxBackoff
	policy.Reset()
	return policy
}

// runStep calls the step's wallet commands concurrently and records the transition.
func (o *Orchestrator) runStep(ctx context.Context, state workflow.State) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.id", state.WorkflowID),
		attribute.String("workflow.step", string(state.Step)),
		attribute.Int("workflow.attempt", state.Attempts+1),
	))
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if o.observer != nil {
			o.observer.ObserveStep(string(state.Step), err != nil, time.Since(started))
		}
	}()

	id := state.WorkflowID
	t := state.Transfer
	group, groupCtx := errgroup.WithContext(ctx)
	switch state.Step {
	case workflow.StepInitiateTransfer:
		group.Go(func() error {
			_, err := o.wallets.Withdraw(groupCtx, t.FromWalletID, t.Amount, id)
			return err
		})
		group.Go(func() error {
			_, err := o.wallets.Deposit(groupCtx, t.ToWalletID, t.Amount, id)
			return err
		})
		if err := group.Wait(); err != nil {
			return err
		}
		_, err = o.workflows.Initiate(ctx, id)
		return err
	case workflow.StepExecute:
		for _, walletID := range t.Participants() {
			group.Go(func() error {
				_, err := o.wallets.ExecuteTransaction(groupCtx, walletID, id)
				return err
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		_, err = o.workflows.Complete(ctx, id)
		return err
	case workflow.StepCancel:
		for _, walletID := range t.Participants() {
			group.Go(func() error {
				_, err := o.wallets.CancelTransaction(groupCtx, walletID, id)
				return err
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		_, err = o.workflows.Cancel(ctx, id)
		return err
	default:
		return fmt.Errorf("workflow %s has unknown step %q", id, state.Step)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
