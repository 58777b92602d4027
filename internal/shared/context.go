package shared

import "context"

type actorContextKey struct{}

// ContextWithActor tags the context with the caller recorded in audit logs.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the caller stored by ContextWithActor, or "system".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
