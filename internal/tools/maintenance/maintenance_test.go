package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/service"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/integrity"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/sqlite"
)

var fixedNow = time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	verifyErr   error
	summary     storage.OutboxSummary
	entries     []storage.OutboxEntry
	listStatus  storage.OutboxStatus
	requeued    int
	requeueArgs []any
	attempts    []storage.AttemptRecord
	open        map[string][]string
	closed      bool
}

func (f *fakeStore) VerifyEventIntegrity(context.Context) error { return f.verifyErr }

func (f *fakeStore) GetOutboxSummary(context.Context) (storage.OutboxSummary, error) {
	return f.summary, nil
}

func (f *fakeStore) ListOutboxEntries(_ context.Context, status storage.OutboxStatus, _ int) ([]storage.OutboxEntry, error) {
	f.listStatus = status
	return f.entries, nil
}

func (f *fakeStore) RequeueDeadOutboxEntries(_ context.Context, limit int, now time.Time) (int, error) {
	f.requeueArgs = []any{limit, now}
	return f.requeued, nil
}

func (f *fakeStore) ListAttempts(context.Context, int) ([]storage.AttemptRecord, error) {
	return f.attempts, nil
}

func (f *fakeStore) ListOpenStreams(_ context.Context, aggregateType string, _ ...event.Type) ([]string, error) {
	return f.open[aggregateType], nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/ledger.db" {
		t.Fatalf("db path = %q, want data/ledger.db", cfg.DBPath)
	}
	if cfg.Timeout != 10*time.Minute {
		t.Fatalf("timeout = %v, want 10m", cfg.Timeout)
	}
	if cfg.OutboxLimit != 50 || cfg.AttemptsLimit != 50 {
		t.Fatalf("limits = %d/%d, want 50/50", cfg.OutboxLimit, cfg.AttemptsLimit)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("WALLETSAGA_LEDGER_DB_PATH", "/tmp/env.db")
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-outbox-report", "-outbox-status", "dead", "-json", "-timeout", "30s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("db path = %q, want env value", cfg.DBPath)
	}
	if !cfg.OutboxReport || cfg.OutboxStatus != "dead" || !cfg.JSONOutput {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestValidateModes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "none", cfg: Config{}, wantErr: "is required"},
		{name: "two", cfg: Config{Verify: true, Attempts: true, AttemptsLimit: 1}, wantErr: "single mode"},
		{name: "outbox limit", cfg: Config{OutboxReport: true}, wantErr: "-outbox-limit"},
		{name: "requeue limit", cfg: Config{OutboxRequeueDead: true}, wantErr: "-outbox-requeue-dead-limit"},
		{name: "attempts limit", cfg: Config{Attempts: true}, wantErr: "-attempts-limit"},
		{name: "verify", cfg: Config{Verify: true}},
		{name: "health", cfg: Config{HealthAddr: "localhost:8081"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateModes(tc.cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestRunWithStoreVerifyReportsFailure(t *testing.T) {
	store := &fakeStore{verifyErr: errors.New("hash mismatch")}
	var out bytes.Buffer

	err := runWithStore(context.Background(), Config{Verify: true, JSONOutput: true}, store, fixedNow, &out, nil)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("error = %v, want hash mismatch", err)
	}
	if !store.closed {
		t.Fatal("expected store to be closed")
	}
	var report verifyReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.OK || report.Error != "hash mismatch" {
		t.Fatalf("report = %+v", report)
	}
}

func TestRunOutboxReportText(t *testing.T) {
	store := &fakeStore{
		summary: storage.OutboxSummary{PendingCount: 1, DeadCount: 1, OldestStream: "wallet/A", OldestSeq: 2, OldestPendingAt: fixedNow},
		entries: []storage.OutboxEntry{{
			AggregateType: "wallet",
			AggregateID:   "A",
			Seq:           2,
			EventType:     "wallet.deposited",
			Status:        storage.OutboxDead,
			AttemptCount:  8,
			NextAttemptAt: fixedNow,
			LastError:     "boom",
		}},
	}
	var out bytes.Buffer
	if err := runOutboxReport(context.Background(), store, " DEAD ", 10, false, &out); err != nil {
		t.Fatalf("outbox report: %v", err)
	}
	if store.listStatus != storage.OutboxDead {
		t.Fatalf("status filter = %q, want dead", store.listStatus)
	}
	text := out.String()
	for _, want := range []string{
		"pending=1 processing=0 failed=0 dead=1",
		"Oldest pending/failed row: wallet/A@2",
		"Rows (status=dead, limit=10)",
		"- wallet/A@2 status=dead attempts=8",
		"last_error=boom",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunOutboxRequeueDeadRowsJSON(t *testing.T) {
	store := &fakeStore{requeued: 3}
	var out bytes.Buffer
	if err := runOutboxRequeueDeadRows(context.Background(), store, 5, fixedNow, true, &out); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if store.requeueArgs[0] != 5 || store.requeueArgs[1] != fixedNow {
		t.Fatalf("requeue args = %v", store.requeueArgs)
	}
	var result outboxRequeueDeadResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Requeued != 3 || result.Limit != 5 || result.Mode != "outbox-requeue-dead" {
		t.Fatalf("result = %+v", result)
	}
	if err := runOutboxRequeueDeadRows(context.Background(), store, 0, fixedNow, false, &out); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestRunAttemptsReport(t *testing.T) {
	store := &fakeStore{attempts: []storage.AttemptRecord{{
		EventID:      "wallet/A@3",
		EventType:    "wallet.withdraw_initiated",
		Consumer:     "saga.wallet",
		Outcome:      "retry",
		AttemptCount: 2,
		LastError:    "conflict",
		CreatedAt:    fixedNow,
	}}}
	var out bytes.Buffer
	if err := runAttemptsReport(context.Background(), store, 5, false, &out); err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if !strings.Contains(out.String(), "- wallet/A@3 wallet.withdraw_initiated consumer=saga.wallet outcome=retry attempts=2") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

// seedLedger writes a funded wallet and an unresolved saga to a fresh ledger file.
func seedLedger(t *testing.T) string {
	t.Helper()
	t.Setenv("WALLETSAGA_EVENT_HMAC_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("WALLETSAGA_EVENT_HMAC_KEYS", "")
	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	registries, err := service.BuildRegistries()
	if err != nil {
		t.Fatalf("registries: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := sqlite.Open(path, keyring, registries.Events, sqlite.WithOutboxEnabled(true))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	dispatcher, err := service.NewDispatcher(service.Config{Registries: registries, Events: store, Snapshots: store})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	ctx := context.Background()
	if _, err := service.NewWallets(dispatcher).Fund(ctx, "A", 100); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := service.NewTransfers(dispatcher).Init(ctx, "m:t1", []string{"A", "B"}); err != nil {
		t.Fatalf("init saga: %v", err)
	}
	return path
}

func TestRunAgainstLedgerFile(t *testing.T) {
	path := seedLedger(t)

	t.Run("verify", func(t *testing.T) {
		var out bytes.Buffer
		if err := Run(context.Background(), Config{DBPath: path, Verify: true}, &out, nil); err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !strings.Contains(out.String(), "Event integrity verified") {
			t.Fatalf("unexpected output: %s", out.String())
		}
	})

	t.Run("outbox report", func(t *testing.T) {
		var out bytes.Buffer
		cfg := Config{DBPath: path, OutboxReport: true, OutboxLimit: 10, JSONOutput: true}
		if err := Run(context.Background(), cfg, &out, nil); err != nil {
			t.Fatalf("outbox report: %v", err)
		}
		var report outboxReport
		if err := json.Unmarshal(out.Bytes(), &report); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		if report.Summary.Pending == 0 || len(report.Rows) == 0 {
			t.Fatalf("expected pending outbox rows, got %+v", report)
		}
	})

	t.Run("open transfers", func(t *testing.T) {
		var out bytes.Buffer
		cfg := Config{DBPath: path, OpenTransfers: true, JSONOutput: true}
		if err := Run(context.Background(), cfg, &out, nil); err != nil {
			t.Fatalf("open transfers: %v", err)
		}
		var report openTransfersReport
		if err := json.Unmarshal(out.Bytes(), &report); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		if len(report.Sagas) != 1 || report.Sagas[0] != "m:t1" {
			t.Fatalf("sagas = %v, want [m:t1]", report.Sagas)
		}
		if len(report.Workflows) != 0 {
			t.Fatalf("workflows = %v, want none", report.Workflows)
		}
	})
}

func TestRunRejectsMissingDatabase(t *testing.T) {
	cfg := Config{DBPath: filepath.Join(t.TempDir(), "missing.db"), Verify: true}
	if err := Run(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected error for missing database")
	}
}
