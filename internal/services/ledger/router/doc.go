// Package router delivers outbox events to reactors at least once.
//
// Each poll claims due outbox rows from the store. The store guarantees that a
// stream has at most one row in flight, so events of one aggregate reach reactors
// in append order while different aggregates are delivered in parallel. A reactor
// error schedules the row for retry with backoff; errors marked Permanent, and
// rows that exhaust their attempts, move to the dead letter state until an
// operator requeues them.
package router
