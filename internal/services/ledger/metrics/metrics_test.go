package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/router"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeOutbox struct {
	storage.OutboxStore
	summary storage.OutboxSummary
}

func (f fakeOutbox) GetOutboxSummary(context.Context) (storage.OutboxSummary, error) {
	return f.summary, nil
}

func TestObserveDelivery(t *testing.T) {
	m := New()
	m.ObserveDelivery("wallet.deposited", router.OutcomeSucceeded, 10*time.Millisecond)
	m.ObserveDelivery("wallet.deposited", router.OutcomeSucceeded, 20*time.Millisecond)
	m.ObserveDelivery("wallet.deposited", router.OutcomeRetry, time.Millisecond)

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("wallet.deposited", "succeeded")); got != 2 {
		t.Fatalf("succeeded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("wallet.deposited", "retry")); got != 1 {
		t.Fatalf("retry = %v, want 1", got)
	}
}

func TestObserveStep(t *testing.T) {
	m := New()
	m.ObserveStep("initiate-transfer", true, time.Millisecond)
	m.ObserveStep("initiate-transfer", false, time.Millisecond)
	if got := testutil.ToFloat64(m.steps.WithLabelValues("initiate-transfer", "failed")); got != 1 {
		t.Fatalf("failed = %v, want 1", got)
	}
}

func TestHandlerExportsOutboxBacklog(t *testing.T) {
	m := New()
	m.WatchOutbox(fakeOutbox{summary: storage.OutboxSummary{PendingCount: 3, DeadCount: 1}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`walletsaga_outbox_entries{status="pending"} 3`,
		`walletsaga_outbox_entries{status="dead"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
