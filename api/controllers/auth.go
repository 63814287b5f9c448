package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/componentry-backend/api/middleware"
	"github.com/angelmondragon/componentry-backend/api/responses"
	"github.com/angelmondragon/componentry-backend/api/validators"
	"github.com/angelmondragon/componentry-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

var errAuthUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")

// decodeThen validates the JSON body into Req and answers with whatever call
// returns, using status on success.
func decodeThen[Req, Resp any](logg *logger.Logger, status int, ready bool, call func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !ready {
			responses.WriteError(ctx, logg, w, errAuthUnavailable)
			return
		}
		var body Req
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out, err := call(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return decodeThen(logg, http.StatusOK, svc != nil, func(ctx context.Context, body auth.LoginRequest) (*auth.TokenResponse, error) {
		return svc.Login(ctx, body)
	})
}

// AuthRegister creates the account and answers with a fresh session for it.
func AuthRegister(reg auth.RegisterService, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return decodeThen(logg, http.StatusCreated, reg != nil && svc != nil, func(ctx context.Context, body auth.RegisterRequest) (*auth.TokenResponse, error) {
		if _, err := reg.Register(ctx, body); err != nil {
			return nil, err
		}
		return svc.Login(ctx, auth.LoginRequest{Email: body.Email, Password: body.Password})
	})
}

// AuthRefresh trades a refresh token for a new pair. The old one stops working.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return decodeThen(logg, http.StatusOK, svc != nil, func(ctx context.Context, body auth.RefreshRequest) (*auth.TokenResponse, error) {
		return svc.Refresh(ctx, body)
	})
}

func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errAuthUnavailable)
			return
		}
		if err := svc.Logout(ctx, middleware.AccessIDFromContext(ctx)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}
