package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/handlers/render"
	"github.com/nkiryanov/queuedesk/internal/handlers/userctx"
	"github.com/nkiryanov/queuedesk/internal/models"
)

type authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (models.User, error)
}

type securityLogger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Errors meaning the request has no usable credential
var rejections = []error{
	apperrors.ErrAccessTokenNotFound,
	apperrors.ErrAccessTokenMalformed,
	apperrors.ErrAccessTokenSignatureInvalid,
	apperrors.ErrAccessTokenExpired,
	apperrors.ErrAccessTokenStale,
	apperrors.ErrUserNotFound,
}

func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Admit only requests with valid access token, attach user to request context
// Rejection is logged as security event without the token itself
// Other failures (storage unavailable) are 500: client must not treat them as expired session
func AuthMiddleware(auth authenticator, l securityLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.Authenticate(r.Context(), r)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), user)))
			case isRejection(err):
				l.Warn("security event",
					"event", "request_not_admitted",
					"remote", r.RemoteAddr,
					"path", r.URL.Path,
					"reason", err.Error(),
				)
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			default:
				l.Error("Failed to authenticate request", "error", err, "path", r.URL.Path)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
		})
	}
}
