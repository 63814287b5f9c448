package marketplace

import (
	"net/http"

	"github.com/angelmondragon/componentry-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/componentry-backend/api/responses"
	"github.com/angelmondragon/componentry-backend/api/validators"
	approvalsvc "github.com/angelmondragon/componentry-backend/internal/approvals"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

// AdminPendingApprovals lists the review queue, oldest first.
func AdminPendingApprovals(svc approvalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approval service unavailable"))
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListPending(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminReviewApproval(svc approvalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "approval service unavailable"))
			return
		}
		actor, err := actorcontext.Require(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		approvalID, err := validators.PathUUID(r, "approvalID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body approvalsvc.ReviewInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		approval, err := svc.Review(r.Context(), actor, approvalID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, approval)
	}
}
