// Package command defines the canonical command envelope and contract used across
// the ledger write path.
//
// Commands express intent from API callers, reactors, timers and the workflow
// orchestrator. They are normalized and checked against the registry before any
// decider sees them, so aggregate rules only run on well-formed input.
package command
