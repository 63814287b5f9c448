package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/componentry-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/componentry-backend/api/responses"
	"github.com/angelmondragon/componentry-backend/api/validators"
	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type AuditLister interface {
	List(ctx context.Context, params audit.ListParams) (*audit.ListResult, error)
}

type JobRunner interface {
	Trigger(ctx context.Context, actor access.Actor, name string) error
	Jobs() []string
}

// AuditLogs pages through the audit trail, newest first.
func AuditLogs(svc AuditLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		params := audit.ListParams{
			Action:       enums.AuditAction(strings.TrimSpace(query.Get("action"))),
			ResourceType: validators.SanitizeString(query.Get("resource_type"), 64),
			ResourceID:   validators.SanitizeString(query.Get("resource_id"), 64),
			Limit:        page.Limit,
			Cursor:       page.Cursor,
		}
		if raw := strings.TrimSpace(query.Get("actor_id")); raw != "" {
			actorID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid actor_id"))
				return
			}
			params.ActorID = &actorID
		}
		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ListJobs(svc JobRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job runner unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"jobs": svc.Jobs()})
	}
}

// RunJob executes one lifecycle job synchronously under the shared cycle lock.
func RunJob(svc JobRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job runner unavailable"))
			return
		}
		actor, err := actorcontext.Require(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		name := strings.TrimSpace(chi.URLParam(r, "name"))
		if name == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "job name is required"))
			return
		}
		if err := svc.Trigger(r.Context(), actor, name); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"job": name, "status": "completed"})
	}
}
