package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConsumer     = "ledger-router"
	defaultPollInterval = 250 * time.Millisecond
	defaultBatchSize    = 64
	defaultWorkers      = 8
)

// Reactor handles one routed event. Handle must tolerate redelivery.
type Reactor interface {
	Name() string
	Handle(ctx context.Context, evt event.Event) error
}

// ReactorFunc adapts a function into a named Reactor.
type ReactorFunc struct {
	ReactorName string
	Fn          func(ctx context.Context, evt event.Event) error
}

// Name returns the reactor name used in attempt records.
func (f ReactorFunc) Name() string { return f.ReactorName }

// Handle calls Fn.
func (f ReactorFunc) Handle(ctx context.Context, evt event.Event) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx, evt)
}

// EventReader loads the stored event an outbox row points to.
type EventReader interface {
	GetEventBySeq(ctx context.Context, aggregateType, aggregateID string, seq uint64) (event.Event, error)
}

// Observer receives delivery outcomes, typically to update metrics.
type Observer interface {
	ObserveDelivery(eventType string, outcome Outcome, elapsed time.Duration)
}

// Config controls polling behavior.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	return c
}

// Router polls the outbox and fans each event out to its reactors.
type Router struct {
	outbox    storage.OutboxStore
	events    EventReader
	recorder  AttemptRecorder
	observer  Observer
	config    Config
	now       func() time.Time
	byType    map[event.Type][]Reactor
	catchAll  []Reactor
	subscribe []string
}

// New builds a router over outbox and events.
func New(outbox storage.OutboxStore, events EventReader, recorder AttemptRecorder, config Config, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{
		outbox:   outbox,
		events:   events,
		recorder: recorder,
		config:   config.normalized(),
		now:      now,
		byType:   make(map[event.Type][]Reactor),
	}
}

// WithObserver sets the delivery observer.
func (r *Router) WithObserver(observer Observer) *Router {
	r.observer = observer
	return r
}

// On subscribes reactor to the listed event types. Reactors run in subscription order.
func (r *Router) On(reactor Reactor, eventTypes ...event.Type) {
	for _, eventType := range eventTypes {
		r.byType[eventType] = append(r.byType[eventType], reactor)
	}
	r.subscribe = append(r.subscribe, reactor.Name())
}

// OnAll subscribes reactor to every routed event after the typed reactors ran.
func (r *Router) OnAll(reactor Reactor) {
	r.catchAll = append(r.catchAll, reactor)
	r.subscribe = append(r.subscribe, reactor.Name())
}

// Reactors lists subscribed reactor names.
func (r *Router) Reactors() []string {
	return append([]string(nil), r.subscribe...)
}

// Run polls until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	if r.outbox == nil || r.events == nil {
		return fmt.Errorf("router outbox and event reader are required")
	}
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	for {
		for {
			processed, err := r.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				log.Printf("router poll: %v", err)
			}
			if err != nil || processed < r.config.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and delivers it. It returns the number of rows claimed.
func (r *Router) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.ClaimOutboxDue(ctx, r.now().UTC(), r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.config.Workers)
	for _, entry := range entries {
		group.Go(func() error {
			return r.deliver(groupCtx, entry)
		})
	}
	return len(entries), group.Wait()
}

func (r *Router) deliver(ctx context.Context, entry storage.OutboxEntry) error {
	started := r.now()
	evt, err := r.events.GetEventBySeq(ctx, entry.AggregateType, entry.AggregateID, entry.Seq)
	if err != nil {
		dead := errors.Is(err, storage.ErrNotFound)
		return r.fail(ctx, entry, string(entry.EventType), "", fmt.Errorf("load event: %w", err), dead, started)
	}

	for _, reactor := range r.reactorsFor(evt.Type) {
		if err := reactor.Handle(ctx, evt); err != nil {
			return r.fail(ctx, entry, evt.Ref(), reactor.Name(), err, IsPermanent(err), started)
		}
		r.record(ctx, Attempt{
			EventID:      evt.Ref(),
			EventType:    string(evt.Type),
			Consumer:     reactor.Name(),
			Outcome:      OutcomeSucceeded,
			AttemptCount: entry.AttemptCount + 1,
			CreatedAt:    r.now().UTC(),
		})
	}

	if err := r.outbox.CompleteOutboxEntry(ctx, entry); err != nil {
		return fmt.Errorf("complete outbox %s: %w", evt.Ref(), err)
	}
	r.observe(string(evt.Type), OutcomeSucceeded, started)
	return nil
}

func (r *Router) fail(ctx context.Context, entry storage.OutboxEntry, eventID, consumer string, cause error, dead bool, started time.Time) error {
	status, err := r.outbox.MarkOutboxRetry(ctx, entry, r.now().UTC(), truncateError(cause), dead)
	if err != nil {
		return fmt.Errorf("mark outbox retry %s: %w", eventID, err)
	}
	outcome := OutcomeRetry
	if status == storage.OutboxDead {
		outcome = OutcomeDead
		log.Printf("router dead letter event=%s consumer=%s attempts=%d: %v", eventID, consumer, entry.AttemptCount+1, cause)
	} else {
		log.Printf("router retry event=%s consumer=%s attempts=%d: %v", eventID, consumer, entry.AttemptCount+1, cause)
	}
	r.record(ctx, Attempt{
		EventID:      eventID,
		EventType:    string(entry.EventType),
		Consumer:     consumer,
		Outcome:      outcome,
		AttemptCount: entry.AttemptCount + 1,
		Error:        cause.Error(),
		CreatedAt:    r.now().UTC(),
	})
	r.observe(string(entry.EventType), outcome, started)
	return nil
}

func (r *Router) reactorsFor(eventType event.Type) []Reactor {
	typed := r.byType[eventType]
	reactors := make([]Reactor, 0, len(typed)+len(r.catchAll))
	reactors = append(reactors, typed...)
	return append(reactors, r.catchAll...)
}

func (r *Router) record(ctx context.Context, attempt Attempt) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordAttempt(ctx, attempt); err != nil {
		log.Printf("router record attempt event=%s: %v", attempt.EventID, err)
	}
}

func (r *Router) observe(eventType string, outcome Outcome, started time.Time) {
	if r.observer == nil {
		return
	}
	r.observer.ObserveDelivery(eventType, outcome, r.now().Sub(started))
}

func truncateError(err error) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) > 512 {
		return msg[:512]
	}
	return msg
}
