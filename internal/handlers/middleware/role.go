package middleware

import (
	"net/http"

	"github.com/nkiryanov/queuedesk/internal/handlers/render"
	"github.com/nkiryanov/queuedesk/internal/handlers/userctx"
	"github.com/nkiryanov/queuedesk/internal/models"
)

// Allow request if user role satisfies any of roles
// Has to be used after AuthMiddleware
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if user.Role.Satisfies(role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			render.ServiceError(w, "Forbidden", http.StatusForbidden)
		})
	}
}
