package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/integrity"
)

func testKeyring(t *testing.T) *integrity.Keyring {
	t.Helper()
	keyring, err := integrity.NewKeyring(
		map[string][]byte{"test-key-1": []byte("0123456789abcdef0123456789abcdef")},
		"test-key-1",
	)
	if err != nil {
		t.Fatalf("create test keyring: %v", err)
	}
	return keyring
}

func testRegistry(t *testing.T) *event.Registry {
	t.Helper()
	registry := event.NewRegistry()
	if err := wallet.RegisterEvents(registry); err != nil {
		t.Fatalf("register wallet events: %v", err)
	}
	if err := workflow.RegisterEvents(registry); err != nil {
		t.Fatalf("register workflow events: %v", err)
	}
	return registry
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	store, err := Open(path, testKeyring(t), testRegistry(t), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

var testTime = time.Date(2026, 2, 16, 2, 0, 0, 0, time.UTC)

func walletEvent(walletID string, eventType event.Type, payload string) event.Event {
	return event.Event{
		AggregateType: wallet.AggregateType,
		AggregateID:   walletID,
		Type:          eventType,
		Timestamp:     testTime,
		ActorType:     event.ActorTypeClient,
		PayloadJSON:   []byte(payload),
	}
}
