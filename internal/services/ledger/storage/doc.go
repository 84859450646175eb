// Package storage defines the persistence contracts behind the ledger: the event
// log, the router outbox, durable timers, reactor attempts and read models.
//
// Backends live in subpackages; the domain and worker packages depend only on
// these interfaces.
package storage
