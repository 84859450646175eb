// Package engine wires command validation, replay-backed state loading, decision
// routing, optimistic event append, and state folding for one aggregate kind.
//
// It is the single-writer seam of the ledger: commands for the same stream are
// serialized in process, and the journal's expected-sequence check catches writers
// in other processes. A conflicting append reloads state and decides again.
package engine
