package publish

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/publicevent"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/router"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

var fixedNow = time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []publicevent.Event
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(_ context.Context, evt publicevent.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func depositedEvent() event.Event {
	return event.Event{
		AggregateType: wallet.AggregateType,
		AggregateID:   "A",
		Seq:           3,
		Type:          wallet.EventTypeDeposited,
		Timestamp:     fixedNow,
		PayloadJSON:   []byte(`{"amount":40,"transaction_id":"m:t1"}`),
	}
}

func TestReactorPublishesPublicEvents(t *testing.T) {
	publisher := &recordingPublisher{}
	reactor := Reactor{Publisher: publisher}

	if err := reactor.Handle(context.Background(), depositedEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	reserved := depositedEvent()
	reserved.Type = wallet.EventTypeDepositInitiated
	if err := reactor.Handle(context.Background(), reserved); err != nil {
		t.Fatalf("handle reservation: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("published = %d, want 1", len(publisher.events))
	}
	got := publisher.events[0]
	if got.Type != publicevent.TypeBalanceIncreased || got.Body.Amount != 40 || got.ID != "wallet/A@3" {
		t.Fatalf("event = %+v", got)
	}
}

func TestReactorMarksMalformedPayloadPermanent(t *testing.T) {
	evt := depositedEvent()
	evt.PayloadJSON = []byte("{")
	err := Reactor{Publisher: &recordingPublisher{}}.Handle(context.Background(), evt)
	if !router.IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
}

func TestLogPublisher(t *testing.T) {
	var line string
	publisher := LogPublisher{Logf: func(format string, args ...any) {
		line = format
		if args[1] != publicevent.TypeWalletCreated {
			t.Fatalf("type arg = %v", args[1])
		}
	}}
	err := publisher.Publish(context.Background(), publicevent.Event{ID: "wallet/A@1", Type: publicevent.TypeWalletCreated, Body: publicevent.Body{WalletID: "A"}})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.HasPrefix(line, "public event") {
		t.Fatalf("line = %q", line)
	}
}

func TestNewSelectsPublisher(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{kind: "", want: "log"},
		{kind: KindLog, want: "log"},
		{kind: KindNone, want: "none"},
	}
	for _, tc := range tests {
		publisher, err := New(Config{Kind: tc.kind})
		if err != nil {
			t.Fatalf("new %q: %v", tc.kind, err)
		}
		switch publisher.(type) {
		case LogPublisher:
			if tc.want != "log" {
				t.Fatalf("kind %q built log publisher", tc.kind)
			}
		case Nop:
			if tc.want != "none" {
				t.Fatalf("kind %q built nop publisher", tc.kind)
			}
		default:
			t.Fatalf("kind %q built %T", tc.kind, publisher)
		}
	}
	if _, err := New(Config{Kind: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown publisher")
	}
	if _, err := New(Config{Kind: KindKafka}); err == nil {
		t.Fatal("expected error for kafka without brokers")
	}
	if _, err := New(Config{Kind: KindRabbitMQ, AMQPURL: "http://broker"}); err == nil {
		t.Fatal("expected error for non-amqp url")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &recordingPublisher{err: errors.New("broker down")}
	breaker := NewBreaker("test", next, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Hour})
	evt := publicevent.Event{ID: "wallet/A@1", Type: publicevent.TypeWalletCreated}

	for i := 0; i < 2; i++ {
		if err := breaker.Publish(context.Background(), evt); err == nil || errors.Is(err, ErrUnavailable) {
			t.Fatalf("attempt %d err = %v, want broker error", i, err)
		}
	}
	if breaker.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", breaker.State())
	}
	err := breaker.Publish(context.Background(), evt)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if router.IsPermanent(err) {
		t.Fatal("open breaker error should be retryable")
	}
	if err := breaker.Close(); err != nil || !next.closed {
		t.Fatalf("close = %v, closed = %v", err, next.closed)
	}
}

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	failNext  bool
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	if !durable {
		return errors.New("exchange must be durable")
	}
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.failNext {
		f.failNext = false
		return amqp.ErrClosed
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQPublishesToTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	publisher := newRabbitMQ(ch, "", nil)
	evt := publicevent.Event{ID: "wallet/A@3", Type: publicevent.TypeBalanceIncreased, OccurredAt: fixedNow, Body: publicevent.Body{WalletID: "A", Amount: 40}}

	if err := publisher.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish again: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "wallet-events:topic" {
		t.Fatalf("declared = %v, want one wallet-events topic", ch.declared)
	}
	msg := ch.published[0]
	if ch.keys[0] != publicevent.TypeBalanceIncreased {
		t.Fatalf("routing key = %q", ch.keys[0])
	}
	if msg.MessageId != "wallet/A@3" || msg.DeliveryMode != amqp.Persistent || string(msg.Body) != `{"walletId":"A","amount":40}` {
		t.Fatalf("message = %+v", msg)
	}
}

func TestRabbitMQReopensChannelOnFailure(t *testing.T) {
	broken := &fakeChannel{failNext: true}
	fresh := &fakeChannel{}
	publisher := newRabbitMQ(broken, "events", func() (amqpChannel, error) { return fresh, nil })

	if err := publisher.Publish(context.Background(), publicevent.Event{ID: "wallet/A@1", Type: publicevent.TypeWalletCreated}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !broken.closed {
		t.Fatal("broken channel not closed")
	}
	if len(fresh.published) != 1 || len(fresh.declared) != 1 {
		t.Fatalf("fresh channel published=%d declared=%d, want 1 and 1", len(fresh.published), len(fresh.declared))
	}
}

type fakeWriter struct {
	messages []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaKeysByWallet(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &Kafka{writer: writer}
	evt := publicevent.Event{ID: "wallet/B@5", Type: publicevent.TypeBalanceDecreased, OccurredAt: fixedNow, Body: publicevent.Body{WalletID: "B", Amount: 15}}
	if err := publisher.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "B" || !msg.Time.Equal(fixedNow) {
		t.Fatalf("message key=%q time=%s", msg.Key, msg.Time)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[1].Value) != publicevent.TypeBalanceDecreased {
		t.Fatalf("headers = %+v", msg.Headers)
	}
	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("close = %v, closed = %v", err, writer.closed)
	}
}
