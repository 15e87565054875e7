package gaudit

import (
	"context"
)

type actorKey struct{}
type skipKey struct{}

// ActorResolver returns the identifier of the user making the change, or "" when unknown.
type ActorResolver func(ctx context.Context) string

// WithActor attaches the acting user's identifier to the context.
func WithActor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

// ActorFromContext is the default ActorResolver.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}

// WithSkip marks the context so SaveChanges persists without writing audit rows.
func WithSkip(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

func extractSkip(ctx context.Context) bool {
	if v, ok := ctx.Value(skipKey{}).(bool); ok {
		return v
	}
	return false
}
