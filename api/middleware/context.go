package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

type actorKey struct{}

// WithActor injects the caller identity into the context. An unparsable
// user id leaves the request anonymous.
func WithActor(ctx context.Context, userID string, role enums.Role) context.Context {
	id, err := uuid.Parse(userID)
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, access.Actor{UserID: id, Role: role})
}

// ActorFromContext returns the authenticated caller, or nil for anonymous requests.
func ActorFromContext(ctx context.Context) *access.Actor {
	actor, ok := ctx.Value(actorKey{}).(access.Actor)
	if !ok {
		return nil
	}
	return &actor
}

// UserIDFromContext is empty for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if actor := ActorFromContext(ctx); actor != nil {
		return actor.UserID.String()
	}
	return ""
}
