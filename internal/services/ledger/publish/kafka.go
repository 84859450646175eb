package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/publicevent"
	"github.com/segmentio/kafka-go"
)

const defaultTopic = "wallet-events"

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes to a topic keyed by wallet id, so one wallet's events stay
// on one partition in order.
type Kafka struct {
	writer kafkaWriter
}

// NewKafka builds a synchronous writer for topic on brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	addrs := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			addrs = append(addrs, broker)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		topic = defaultTopic
	}
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}}, nil
}

// Publish writes evt and waits for acknowledgement.
func (k *Kafka) Publish(ctx context.Context, evt publicevent.Event) error {
	body, err := evt.MarshalBody()
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Key()),
		Value: body,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(evt.ID)},
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", evt.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
