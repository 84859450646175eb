// Package event defines the canonical event envelope and event-type registry used by
// the ledger write path.
//
// Events are immutable facts emitted by accepted decisions. The registry binds each
// event type to the aggregate that owns it, checks actor metadata and payload validity,
// and normalizes payload bytes before persistence assigns sequence and integrity fields.
//
// Wallet, transfer and workflow streams all share this envelope so that replay, the
// event router and the integrity chain treat them the same way.
package event
