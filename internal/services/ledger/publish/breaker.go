package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/publicevent"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker rejects calls.
var ErrUnavailable = errors.New("publisher unavailable")

// BreakerConfig tunes when the breaker opens and how long it stays open.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

func (c BreakerConfig) normalized() BreakerConfig {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	return c
}

// Breaker stops calling a failing publisher until it recovers. Rejected calls
// fail fast so the router schedules a retry instead of waiting on the broker.
type Breaker struct {
	next    Publisher
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker wraps next in a breaker named name.
func NewBreaker(name string, next Publisher, config BreakerConfig) *Breaker {
	config = config.normalized()
	return &Breaker{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "publisher-" + name,
			MaxRequests: config.HalfOpenRequests,
			Timeout:     config.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("circuit breaker %s changed from %s to %s", name, from, to)
			},
		}),
	}
}

// Publish forwards evt unless the breaker is open.
func (b *Breaker) Publish(ctx context.Context, evt publicevent.Event) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, evt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrUnavailable, b.breaker.Name())
	}
	return err
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

// Close closes the wrapped publisher.
func (b *Breaker) Close() error {
	return b.next.Close()
}
