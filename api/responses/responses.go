package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/types"
)

var errUnknown = errors.New("unknown error")

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteAck answers 200 with a bare body. Gateways retry or disable endpoints
// on non-2xx, so webhook handlers report failures inside the payload.
func WriteAck(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, payload)
}

// WriteError renders err as the error envelope. Errors without a code are
// logged in full and answered as INTERNAL_ERROR.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errUnknown
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	if logg != nil {
		logg.Error(logg.WithFields(ctx, pkgerrors.Dump(err).LogFields()), "request.error", err)
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	message, details := typed.Public()
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: types.APIError{
		Code:      string(typed.Code()),
		Message:   message,
		Retryable: meta.Retryable,
		Details:   details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("encode response")
		http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
