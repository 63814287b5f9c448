package marketplace

import (
	"net/http"

	"github.com/angelmondragon/componentry-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/componentry-backend/api/responses"
	"github.com/angelmondragon/componentry-backend/api/validators"
	marketplacesvc "github.com/angelmondragon/componentry-backend/internal/marketplace"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "marketplace service unavailable")
}

// List serves the public approved catalog for one item type.
func List(svc marketplacesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		itemType, err := validators.PathItemType(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		result, err := svc.ListApproved(r.Context(), marketplacesvc.ListParams{
			Type:     itemType,
			Category: validators.SanitizeString(query.Get("category"), 100),
			Search:   validators.SanitizeString(query.Get("q"), 120),
			FreeOnly: validators.ParseQueryBool(r, "free_only"),
			Params:   page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Get returns one item; the download URL is included only for callers with access.
func Get(svc marketplacesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		itemType, err := validators.PathItemType(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.PathUUID(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.GetItem(r.Context(), actorcontext.Optional(r), itemType, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func Download(svc marketplacesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		actor, err := actorcontext.Require(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemType, err := validators.PathItemType(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.PathUUID(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Download(r.Context(), actor, itemType, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Claim records a zero-amount purchase of a free item.
func Claim(svc marketplacesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		actor, err := actorcontext.Require(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemType, err := validators.PathItemType(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.PathUUID(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purchase, err := svc.ClaimFree(r.Context(), actor, itemType, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"purchase_id":    purchase.ID,
			"item_id":        purchase.ItemID,
			"item_type":      purchase.ItemType,
			"status":         purchase.Status,
			"access_granted": purchase.AccessGranted,
		})
	}
}
