// Package publish delivers public wallet events to an external topic.
package publish

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/publicevent"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/router"
)

// Kind selects a publisher implementation.
type Kind string

const (
	KindLog      Kind = "log"
	KindRabbitMQ Kind = "rabbitmq"
	KindKafka    Kind = "kafka"
	KindNone     Kind = "none"
)

// Publisher sends one public event.
type Publisher interface {
	Publish(ctx context.Context, evt publicevent.Event) error
	Close() error
}

// Config selects and configures the publisher.
type Config struct {
	Kind         Kind
	AMQPURL      string
	AMQPExchange string
	KafkaBrokers []string
	KafkaTopic   string
}

// New builds the configured publisher wrapped in a circuit breaker. Log and
// none publishers are returned bare.
func New(cfg Config) (Publisher, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(string(cfg.Kind)))) {
	case KindLog, "":
		return LogPublisher{}, nil
	case KindNone:
		return Nop{}, nil
	case KindRabbitMQ:
		publisher, err := DialRabbitMQ(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return NewBreaker(string(KindRabbitMQ), publisher, BreakerConfig{}), nil
	case KindKafka:
		publisher, err := NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return NewBreaker(string(KindKafka), publisher, BreakerConfig{}), nil
	default:
		return nil, fmt.Errorf("unknown publisher %q", cfg.Kind)
	}
}

// Reactor publishes the public form of wallet events.
type Reactor struct {
	Publisher Publisher
}

// Name implements router.Reactor.
func (Reactor) Name() string { return "publish" }

// EventTypes lists the wallet events with a public counterpart.
func (Reactor) EventTypes() []event.Type {
	return []event.Type{wallet.EventTypeCreated, wallet.EventTypeDeposited, wallet.EventTypeWithdrawn}
}

// Handle translates evt and publishes it.
func (r Reactor) Handle(ctx context.Context, evt event.Event) error {
	public, ok, err := publicevent.Translate(evt)
	if err != nil {
		return router.Permanent(err)
	}
	if !ok {
		return nil
	}
	return r.Publisher.Publish(ctx, public)
}

// LogPublisher writes public events to the process log.
type LogPublisher struct {
	Logf func(format string, args ...any)
}

// Publish logs evt.
func (p LogPublisher) Publish(_ context.Context, evt publicevent.Event) error {
	body, err := evt.MarshalBody()
	if err != nil {
		return err
	}
	logf := p.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("public event id=%s type=%s body=%s", evt.ID, evt.Type, body)
	return nil
}

// Close implements Publisher.
func (LogPublisher) Close() error { return nil }

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, publicevent.Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
