// Package server composes the ledger process.
//
// It opens the signed event log, wires the command dispatcher, the outbox
// router with its reactors, the timer sweep and the workflow orchestrator,
// and exposes the HTTP API alongside a gRPC health endpoint that reports
// each background loop as its own service.
package server
