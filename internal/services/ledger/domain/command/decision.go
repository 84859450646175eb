package command

import "github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"

// Decision represents the pure outcome of handling a command.
//
// A decision with neither events nor rejections is a no-op: the command was
// accepted but the aggregate was already in the requested state.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Kind classifies a rejection so callers can map it to an error taxonomy.
type Kind string

const (
	// KindNotFound rejects commands against an aggregate that does not exist.
	KindNotFound Kind = "not_found"
	// KindConflict rejects commands that clash with the aggregate lifecycle.
	KindConflict Kind = "conflict"
	// KindValidation rejects malformed command input.
	KindValidation Kind = "validation"
	// KindInsufficientFunds rejects withdrawals that exceed the balance.
	KindInsufficientFunds Kind = "insufficient_funds"
)

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Kind    Kind
	Message string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Noop returns a decision that changes nothing.
func Noop() Decision {
	return Decision{}
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}

// IsNoop reports whether the decision neither emits nor rejects.
func (d Decision) IsNoop() bool {
	return len(d.Events) == 0 && len(d.Rejections) == 0
}
