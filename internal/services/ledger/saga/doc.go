// Package saga wires the choreography transfer saga to wallet ledgers.
//
// There is no control loop: wallet events advance the saga, saga events drive
// the wallets, and a durable timer cancels sagas that never initiate. Every
// reaction issues idempotent commands, so the at-least-once router may deliver
// any event more than once.
package saga
