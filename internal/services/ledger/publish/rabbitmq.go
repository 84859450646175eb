package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/publicevent"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "wallet-events"

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes to a durable topic exchange, routed by public event type.
type RabbitMQ struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	reopen   func() (amqpChannel, error)
	exchange string
	declared bool
}

// DialRabbitMQ connects to url and publishes to exchange.
func DialRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "amqp://") && !strings.HasPrefix(url, "amqps://") {
		return nil, errors.New("amqp url must start with amqp:// or amqps://")
	}
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	publisher := newRabbitMQ(ch, exchange, func() (amqpChannel, error) { return conn.Channel() })
	publisher.conn = conn
	return publisher, nil
}

func newRabbitMQ(ch amqpChannel, exchange string, reopen func() (amqpChannel, error)) *RabbitMQ {
	if strings.TrimSpace(exchange) == "" {
		exchange = defaultExchange
	}
	return &RabbitMQ{channel: ch, reopen: reopen, exchange: exchange}
}

// Publish sends evt as a persistent JSON message. A failed publish reopens the
// channel once and retries.
func (p *RabbitMQ) Publish(ctx context.Context, evt publicevent.Event) error {
	body, err := evt.MarshalBody()
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Type:         evt.Type,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.publish(ctx, evt.Type, msg)
	if err == nil || p.reopen == nil {
		return err
	}
	ch, reopenErr := p.reopen()
	if reopenErr != nil {
		return fmt.Errorf("publish %s: %w", evt.ID, errors.Join(err, reopenErr))
	}
	_ = p.channel.Close()
	p.channel = ch
	p.declared = false
	if err := p.publish(ctx, evt.Type, msg); err != nil {
		return fmt.Errorf("publish %s: %w", evt.ID, err)
	}
	return nil
}

func (p *RabbitMQ) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
		}
		p.declared = true
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close closes the channel and connection.
func (p *RabbitMQ) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
