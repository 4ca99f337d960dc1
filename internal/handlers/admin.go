package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/queuedesk/internal/handlers/render"
	"github.com/nkiryanov/queuedesk/internal/handlers/userctx"
	"github.com/nkiryanov/queuedesk/internal/logger"
)

// Bulk revoke of the user sessions, e.g. on compromised account
func handleRevokeSessions(authService authService, l logger.Logger) http.Handler {
	type response struct {
		UserID  uuid.UUID `json:"user_id"`
		Revoked int64     `json:"revoked"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		n, err := authService.RevokeSessions(r.Context(), userID)
		if err != nil {
			l.Error("Failed to revoke user sessions", "error", err, "user_id", userID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		l.Info("Sessions revoked by admin", "user_id", userID, "admin_id", userctx.UserID(r.Context()), "revoked", n)
		render.Success(w, response{UserID: userID, Revoked: n})
	})
}
