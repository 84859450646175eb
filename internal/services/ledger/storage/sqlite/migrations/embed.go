// Package migrations embeds the ledger's SQLite schema.
package migrations

import "embed"

// EventsFS holds the event log, outbox, timer and read model schema.
//
//go:embed events/*.sql
var EventsFS embed.FS
