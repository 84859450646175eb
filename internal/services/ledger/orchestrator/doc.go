// Package orchestrator drives workflow transfers through their step program.
//
// Each workflow runs in its own runner goroutine: initiate-transfer reserves
// both wallets, execute settles them, and cancel compensates a failed
// initiation. Failed steps are recorded on the workflow aggregate and retried
// with backoff, so a restarted process resumes every open workflow from the
// step it persisted.
package orchestrator
