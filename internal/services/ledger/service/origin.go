package service

import (
	"context"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
)

// Origin identifies who issued a command and what caused it.
type Origin struct {
	ActorType     command.ActorType
	ActorID       string
	RequestID     string
	CorrelationID string
	CausationID   string
}

type originKey struct{}

// WithOrigin attaches origin to ctx for every command issued under it.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin attached to ctx, if any.
func OriginFrom(ctx context.Context) (Origin, bool) {
	if ctx == nil {
		return Origin{}, false
	}
	origin, ok := ctx.Value(originKey{}).(Origin)
	return origin, ok
}

func applyOrigin(ctx context.Context, cmd command.Command) command.Command {
	origin, ok := OriginFrom(ctx)
	if !ok {
		return cmd
	}
	if cmd.ActorType == "" {
		cmd.ActorType = origin.ActorType
	}
	if cmd.ActorID == "" {
		cmd.ActorID = origin.ActorID
	}
	if cmd.RequestID == "" {
		cmd.RequestID = origin.RequestID
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = origin.CorrelationID
	}
	if cmd.CausationID == "" {
		cmd.CausationID = origin.CausationID
	}
	return cmd
}
