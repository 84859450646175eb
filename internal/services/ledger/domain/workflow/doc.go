// Package workflow persists the orchestrator's position for one transfer.
//
// The orchestrator drives a linear step program (initiate-transfer, then execute
// or cancel) and records every transition here so a restarted process resumes
// from the last recorded step. The aggregate only guards transitions; it never
// touches wallets itself.
package workflow
