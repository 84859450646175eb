// Package transferid namespaces transfer identifiers by coordination mode so a bare
// external id can be routed to the saga or the workflow without ambiguity.
package transferid

import "strings"

const (
	// SagaPrefix marks ids owned by the choreography saga.
	SagaPrefix = "m:"
	// WorkflowPrefix marks ids owned by the workflow orchestrator.
	WorkflowPrefix = "w:"
)

// Mode identifies which coordinator owns a transfer id.
type Mode string

const (
	// ModeUnknown is returned for ids without a known prefix.
	ModeUnknown Mode = ""
	// ModeSaga is the choreography coordinator.
	ModeSaga Mode = "saga"
	// ModeWorkflow is the workflow orchestrator.
	ModeWorkflow Mode = "workflow"
)

// ForSaga prefixes id for the saga coordinator. Already-prefixed ids are returned as is.
func ForSaga(id string) string {
	if IsSaga(id) {
		return id
	}
	return SagaPrefix + id
}

// ForWorkflow prefixes id for the workflow orchestrator. Already-prefixed ids are returned as is.
func ForWorkflow(id string) string {
	if IsWorkflow(id) {
		return id
	}
	return WorkflowPrefix + id
}

// IsSaga reports whether id belongs to the saga coordinator. A bare prefix
// names no transfer.
func IsSaga(id string) bool {
	return hasPrefixedID(id, SagaPrefix)
}

// IsWorkflow reports whether id belongs to the workflow orchestrator.
func IsWorkflow(id string) bool {
	return hasPrefixedID(id, WorkflowPrefix)
}

func hasPrefixedID(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	return ok && strings.TrimSpace(rest) != ""
}

// ModeOf returns the coordinator that owns id.
func ModeOf(id string) Mode {
	switch {
	case IsSaga(id):
		return ModeSaga
	case IsWorkflow(id):
		return ModeWorkflow
	default:
		return ModeUnknown
	}
}
