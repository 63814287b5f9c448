package actorcontext

import (
	"net/http"

	"github.com/angelmondragon/componentry-backend/api/middleware"
	"github.com/angelmondragon/componentry-backend/internal/access"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

// Require returns the authenticated caller or an UNAUTHORIZED error.
func Require(r *http.Request) (access.Actor, error) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		return access.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return *actor, nil
}

// Optional returns the caller when the request carried a valid token.
func Optional(r *http.Request) *access.Actor {
	return middleware.ActorFromContext(r.Context())
}
