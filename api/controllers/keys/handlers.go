package keys

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/componentry-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/componentry-backend/api/responses"
	"github.com/angelmondragon/componentry-backend/api/validators"
	"github.com/angelmondragon/componentry-backend/internal/keypool"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

type addKeyRequest struct {
	KeyType  string `json:"key_type" validate:"required,oneof=glm bytez openrouter"`
	Value    string `json:"key_value" validate:"required,min=8,max=512"`
	MaxUsers int    `json:"max_users" validate:"required,gt=0,lte=10000"`
	Label    string `json:"label" validate:"max=120"`
}

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "key pool unavailable")
}

// List returns pool keys with masked values, optionally filtered by ?type=.
func List(svc keypool.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		var filter *enums.KeyType
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			keyType, err := enums.ParseKeyType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid key type"))
				return
			}
			filter = &keyType
		}
		keys, err := svc.ListKeys(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, keys)
	}
}

func Add(svc keypool.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body addKeyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		keyType, err := enums.ParseKeyType(body.KeyType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid key type"))
			return
		}
		view, err := svc.AddKey(r.Context(), actor, keypool.AddKeyInput{
			KeyType:  keyType,
			Value:    strings.TrimSpace(body.Value),
			MaxUsers: body.MaxUsers,
			Label:    validators.SanitizeString(body.Label, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func Deactivate(svc keypool.Service, logg *logger.Logger) http.HandlerFunc {
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
		keyID, err := validators.PathUUID(r, "keyID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), actor, keyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": keyID, "is_active": false})
	}
}

// Stats reports capacity per key type.
func Stats(svc keypool.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
