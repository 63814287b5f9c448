package middleware

import (
	"net/http"

	"github.com/angelmondragon/componentry-backend/api/responses"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

// RequireRole admits callers whose role ranks at or above min. It must run
// after Auth.
func RequireRole(min enums.Role, logg *logger.Logger) func(http.Handler) http.Handler {
	denied := pkgerrors.New(pkgerrors.CodeForbidden, min.String()+" role required").
		WithDetails(map[string]any{"required_role": min.String()})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch actor := ActorFromContext(r.Context()); {
			case actor == nil:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			case !actor.Role.AtLeast(min):
				responses.WriteError(r.Context(), logg, w, denied)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
