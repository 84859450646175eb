// Package sqlite implements the ledger's storage contracts on SQLite.
//
// One database holds the event log with its integrity chain, the router outbox
// written in the same transaction as each append, durable timers, aggregate
// snapshots, reactor attempts and the settled balance read model.
package sqlite
