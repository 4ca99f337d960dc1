package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/handlers/render"
	"github.com/nkiryanov/queuedesk/internal/handlers/userctx"
	"github.com/nkiryanov/queuedesk/internal/logger"
)

type userResponse struct {
	User userData `json:"user"`
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=256"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, user, err := authService.Register(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.Success(w, userResponse{User: newUserData(user)})
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			l.Error("Failed to register user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,max=254"`
		Password string `json:"password" validate:"required,max=256"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, user, err := authService.Login(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.Success(w, userResponse{User: newUserData(user)})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		default:
			l.Error("Failed to login user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Rotation failures are not distinguished for the client: all of them are 'Invalid session'
func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err != nil {
			authService.ClearTokens(w)
			render.ServiceError(w, "Invalid session", http.StatusUnauthorized)
			return
		}

		pair, user, err := authService.RefreshPair(r.Context(), refresh)
		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.Success(w, userResponse{User: newUserData(user)})
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound),
			errors.Is(err, apperrors.ErrRefreshTokenExpired),
			errors.Is(err, apperrors.ErrRefreshTokenReused),
			errors.Is(err, apperrors.ErrUserNotFound):
			l.Info("Session refresh rejected", "reason", err.Error(), "remote", r.RemoteAddr)
			authService.ClearTokens(w)
			render.ServiceError(w, "Invalid session", http.StatusUnauthorized)
		default:
			l.Error("Failed to refresh session", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogout(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err == nil {
			err = authService.Logout(r.Context(), refresh)
			if err != nil {
				l.Error("Failed to revoke session on logout", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}

		authService.ClearTokens(w)
		render.Success(w, nil)
	})
}

func handleLogoutAll(authService authService, l logger.Logger) http.Handler {
	type response struct {
		Revoked int64 `json:"revoked"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		n, err := authService.RevokeSessions(r.Context(), user.ID)
		if err != nil {
			l.Error("Failed to revoke user sessions", "error", err, "user_id", user.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.ClearTokens(w)
		render.Success(w, response{Revoked: n})
	})
}
