package auth

import (
	"context"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

type actorKey struct{}

// WithActor stores the caller identity on ctx.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller stored on ctx, or domain.SystemActor.
func ActorFromContext(ctx context.Context) domain.Actor {
	if ctx == nil {
		return domain.SystemActor
	}
	if actor, ok := ctx.Value(actorKey{}).(domain.Actor); ok {
		return actor
	}
	return domain.SystemActor
}
