// Package timer fires persisted one-shot commands at or after their due time.
//
// Timers survive restarts: Run first returns timers a crashed process left in
// flight to the schedule, then sweeps due timers on every tick. Firing is at
// least once, so the scheduled command must be idempotent on its aggregate.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 32
)

// Dispatcher executes a fired command.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) error
}

// Config controls sweep behavior.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Service schedules, cancels and fires durable timers.
type Service struct {
	store      storage.TimerStore
	dispatcher Dispatcher
	config     Config
	now        func() time.Time
}

// New builds a timer service.
func New(store storage.TimerStore, dispatcher Dispatcher, config Config, now func() time.Time) *Service {
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, dispatcher: dispatcher, config: config, now: now}
}

// Schedule persists a timer named name that issues cmd after delay. Scheduling an
// existing name replaces it.
func (s *Service) Schedule(ctx context.Context, name string, delay time.Duration, cmd command.Command) error {
	if s == nil || s.store == nil {
		return errors.New("timer store is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("timer name is required")
	}
	now := s.now().UTC()
	return s.store.ScheduleTimer(ctx, storage.Timer{
		Name:          name,
		FireAt:        now.Add(delay),
		AggregateType: cmd.AggregateType,
		AggregateID:   cmd.AggregateID,
		CommandType:   string(cmd.Type),
		PayloadJSON:   cmd.PayloadJSON,
		CreatedAt:     now,
	})
}

// Cancel removes a pending timer. Cancelling an unknown timer is not an error.
func (s *Service) Cancel(ctx context.Context, name string) error {
	if s == nil || s.store == nil {
		return errors.New("timer store is required")
	}
	if _, err := s.store.CancelTimer(ctx, name); err != nil {
		return err
	}
	return nil
}

// Run recovers in-flight timers and then fires due timers until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.store == nil || s.dispatcher == nil {
		return errors.New("timer store and dispatcher are required")
	}
	recovered, err := s.store.RecoverTimers(ctx)
	if err != nil {
		return fmt.Errorf("recover timers: %w", err)
	}
	if recovered > 0 {
		log.Printf("timer recovered %d in-flight timers", recovered)
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := s.FireDue(ctx); err != nil && ctx.Err() == nil {
			log.Printf("timer sweep: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// FireDue claims and fires due timers once. It returns how many fired successfully.
func (s *Service) FireDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ClaimDueTimers(ctx, now, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due timers: %w", err)
	}
	fired := 0
	for _, timer := range due {
		cmd := command.Command{
			AggregateType: timer.AggregateType,
			AggregateID:   timer.AggregateID,
			Type:          command.Type(timer.CommandType),
			ActorType:     command.ActorTypeTimer,
			ActorID:       timer.Name,
			CausationID:   "timer:" + timer.Name,
			PayloadJSON:   timer.PayloadJSON,
		}
		if err := s.dispatcher.Dispatch(ctx, cmd); err != nil {
			log.Printf("timer fire name=%s attempts=%d: %v", timer.Name, timer.AttemptCount+1, err)
			if retryErr := s.store.RetryTimer(ctx, timer, now, err.Error()); retryErr != nil {
				return fired, fmt.Errorf("retry timer %s: %w", timer.Name, retryErr)
			}
			continue
		}
		if err := s.store.CompleteTimer(ctx, timer.Name); err != nil {
			return fired, fmt.Errorf("complete timer %s: %w", timer.Name, err)
		}
		fired++
	}
	return fired, nil
}
