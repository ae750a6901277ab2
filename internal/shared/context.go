package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context. The id comes from
// the upstream identity layer and is trusted as-is.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user id from context.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	return id, ok
}
