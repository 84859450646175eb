package saga

import (
	"context"
	"log"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// LogReactor logs every routed event it receives.
type LogReactor struct {
	Logf func(format string, args ...any)
}

// Name implements router.Reactor.
func (LogReactor) Name() string { return "log" }

// Handle logs the event reference and payload.
func (r LogReactor) Handle(_ context.Context, evt event.Event) error {
	logf := r.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("event %s type=%s actor=%s cause=%s payload=%s", evt.Ref(), evt.Type, evt.ActorType, evt.CausationID, evt.PayloadJSON)
	return nil
}
