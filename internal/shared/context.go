package shared

import "context"

type (
	ownerContextKey struct{}
	actorContextKey struct{}
)

// ContextWithOwner stores the tenant owner id in context.
func ContextWithOwner(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, ownerID)
}

// OwnerFromContext extracts the tenant owner id from context.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ownerContextKey{}).(int64)
	return id, ok && id > 0
}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext returns the acting user id, zero when unknown.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
