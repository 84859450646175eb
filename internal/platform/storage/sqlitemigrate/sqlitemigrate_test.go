package sqlitemigrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"
	"time"

	_ "modernc.org/sqlite"
)

func TestApplyRunsFilesInOrderOnce(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	migrations := fstest.MapFS{
		"events/002_outbox.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE outbox(id INTEGER PRIMARY KEY, event_seq INTEGER REFERENCES events(seq));"),
		},
		"events/001_events.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE events(seq INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE events;"),
		},
		"events/README.md": &fstest.MapFile{Data: []byte("ignored")},
	}

	ran, err := Apply(ctx, db, migrations, "events")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(ran) != 2 || ran[0] != "events/001_events.sql" || ran[1] != "events/002_outbox.sql" {
		t.Fatalf("ran = %v", ran)
	}
	if !tableExists(t, db, "events") || !tableExists(t, db, "outbox") {
		t.Fatal("expected migrated tables")
	}

	ran, err = Apply(ctx, db, migrations, "events")
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if len(ran) != 0 {
		t.Fatalf("re-apply ran %v, want nothing", ran)
	}
}

func TestApplyLeavesFailedMigrationUnrecorded(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	bad := fstest.MapFS{
		"001_timers.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREAT TABLE timers(id TEXT);")},
	}
	if _, err := Apply(ctx, db, bad, ""); err == nil {
		t.Fatal("expected bad migration to fail")
	}
	applied, err := ListApplied(ctx, db)
	if err != nil {
		t.Fatalf("list applied: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("applied = %v, want none", applied)
	}

	good := fstest.MapFS{
		"001_timers.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE timers(id TEXT PRIMARY KEY);")},
	}
	ran, err := Apply(ctx, db, good, "")
	if err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if len(ran) != 1 || ran[0] != "001_timers.sql" {
		t.Fatalf("ran = %v", ran)
	}
}

func TestApplyToleratesExistingObjects(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	if _, err := db.Exec("CREATE TABLE wallet_balances(wallet_id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	migrations := fstest.MapFS{
		"004_wallet_balances.sql": &fstest.MapFile{Data: []byte("CREATE TABLE wallet_balances(wallet_id TEXT PRIMARY KEY);")},
	}
	if _, err := Apply(ctx, db, migrations, "."); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestListAppliedUsesClock(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	migrations := fstest.MapFS{
		"001_events.sql": &fstest.MapFile{Data: []byte("CREATE TABLE events(seq INTEGER PRIMARY KEY);")},
	}
	if _, err := Apply(ctx, db, migrations, "", WithClock(func() time.Time { return fixed })); err != nil {
		t.Fatalf("apply: %v", err)
	}
	applied, err := ListApplied(ctx, db)
	if err != nil {
		t.Fatalf("list applied: %v", err)
	}
	if len(applied) != 1 || applied[0].Name != "001_events.sql" || !applied[0].AppliedAt.Equal(fixed) {
		t.Fatalf("applied = %+v", applied)
	}
}

func TestApplyRequiresInputs(t *testing.T) {
	if _, err := Apply(context.Background(), nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected nil db error")
	}
	db := openMemoryDB(t)
	if _, err := Apply(context.Background(), db, nil, ""); err == nil {
		t.Fatal("expected nil fs error")
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no markers", content: "SELECT 1;", want: "SELECT 1;"},
		{name: "up only", content: "-- +migrate Up\nSELECT 1;", want: "\nSELECT 1;"},
		{name: "up and down", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;", want: "\nSELECT 1;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractUpMigration(tt.content); got != tt.want {
				t.Fatalf("ExtractUpMigration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		t.Fatalf("check table: %v", err)
	}
	return found == name
}
