package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/queuedesk/internal/handlers/middleware"
	"github.com/nkiryanov/queuedesk/internal/logger"
	"github.com/nkiryanov/queuedesk/internal/models"
	"github.com/nkiryanov/queuedesk/internal/ratelimit"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Use first 'X-Forwarded-For' hop as client ip
	// Enable only behind reverse proxy that sets the header
	TrustProxy bool
}

func NewRouter(
	authService authService,
	limiter ratelimit.Limiter,
	cfg RouterConfig,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, logger)
	adminOnly := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireRole(models.RoleAdmin))
	}

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", handleRegister(authService, logger))
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleTokenRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("POST /logout-all", withAuth(handleLogoutAll(authService, logger)))

	apiuser := http.NewServeMux()
	apiuser.Handle("GET /me", withAuth(handleUserMe()))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("POST /users/{id}/revoke-sessions", adminOnly(handleRevokeSessions(authService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", apiadmin))

	identify := func(r *http.Request) string {
		return ratelimit.Identifier(middleware.ClientIP(r, cfg.TrustProxy), authService.PeekUserID(r))
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.RateLimit(limiter, identify, logger),
	)

	return handler
}

type authService interface {
	// Register client with email and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, email string, password string) (models.TokenPair, models.User, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotFound if user not found or password does not match
	Login(ctx context.Context, email string, password string) (models.TokenPair, models.User, error)

	// Rotate refresh token
	// Has to return one of apperrors.ErrRefreshToken* errors if token could not be exchanged
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, models.User, error)

	// Revoke session of the refresh token. Unknown tokens are ignored
	Logout(ctx context.Context, refresh string) error

	// Revoke every session of the user, return number of revoked tokens
	RevokeSessions(ctx context.Context, userID uuid.UUID) (int64, error)

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Expire auth cookies
	ClearTokens(w http.ResponseWriter)

	// Get refresh token from request
	GetRefreshString(r *http.Request) (string, error)

	// Get request and return user if it authenticated or error
	Authenticate(ctx context.Context, r *http.Request) (models.User, error)

	// User id from access token for request keying, empty if there is no valid one
	PeekUserID(r *http.Request) string
}
