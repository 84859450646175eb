package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/integrity"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed store implementing the ledger storage interfaces.
type Store struct {
	sqlDB         *sql.DB
	keyring       *integrity.Keyring
	eventRegistry *event.Registry
	outboxEnabled bool
	now           func() time.Time
}

// Option configures store behavior.
type Option func(*Store)

// WithOutboxEnabled toggles enqueueing routed events in the append transaction.
func WithOutboxEnabled(enabled bool) Option {
	return func(s *Store) {
		s.outboxEnabled = enabled
	}
}

// WithClock overrides the store clock used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens the ledger SQLite store at path and applies embedded migrations.
//
// The keyring signs every appended event; the registry validates events and
// decides which of them are routed through the outbox.
func Open(path string, keyring *integrity.Keyring, registry *event.Registry, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{
		sqlDB:         sqlDB,
		keyring:       keyring,
		eventRegistry: registry,
		outboxEnabled: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if _, err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.EventsFS, "events", sqlitemigrate.WithClock(store.now)); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) configured() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

var (
	_ storage.EventStore   = (*Store)(nil)
	_ storage.OutboxStore  = (*Store)(nil)
	_ storage.TimerStore   = (*Store)(nil)
	_ storage.AttemptStore = (*Store)(nil)
	_ storage.BalanceStore = (*Store)(nil)
)
