package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor id in context. The REST
// boundary resolves identity; the core only ever sees the id.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
