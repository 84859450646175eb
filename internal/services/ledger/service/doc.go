// Package service exposes the ledger's wallet, saga and workflow commands as
// typed operations.
//
// Every operation builds a command envelope, runs it through the engine handler
// owning its aggregate, and converts domain rejections into the platform error
// taxonomy. Duplicated or already-applied commands are no-ops and never errors.
package service
