package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/logger"
	"github.com/nkiryanov/queuedesk/internal/models"
	"github.com/nkiryanov/queuedesk/internal/ratelimit"
)

// Auth service that admits requests with 'Authorization: Bearer <uuid>'
type fakeAuth struct {
	authService
}

func (fakeAuth) accessUserID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("Authorization")[len("Bearer "):])
	return id, err == nil
}

func (a fakeAuth) Authenticate(_ context.Context, r *http.Request) (models.User, error) {
	if len(r.Header.Get("Authorization")) <= len("Bearer ") {
		return models.User{}, apperrors.ErrAccessTokenNotFound
	}
	id, ok := a.accessUserID(r)
	if !ok {
		return models.User{}, apperrors.ErrAccessTokenMalformed
	}
	return models.User{ID: id, Email: "a@example.com", Role: models.RoleClient}, nil
}

func (a fakeAuth) PeekUserID(r *http.Request) string {
	if len(r.Header.Get("Authorization")) <= len("Bearer ") {
		return ""
	}
	id, ok := a.accessUserID(r)
	if !ok {
		return ""
	}
	return id.String()
}

func TestChain(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("first"), mw("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRouter_RateLimit(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Max: 3, Window: time.Minute, Now: func() time.Time { return now }})
	router := NewRouter(fakeAuth{}, limiter, RouterConfig{}, logger.NewNoOpLogger())

	get := func(userID uuid.UUID) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
		r.RemoteAddr = "10.0.0.1:5000"
		if userID != uuid.Nil {
			r.Header.Set("Authorization", "Bearer "+userID.String())
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	first, second := uuid.New(), uuid.New()
	for range 3 {
		require.Equal(t, http.StatusOK, get(first).Code)
	}

	w := get(first)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"service_error","message":"Too many requests","retry_after":60}`, w.Body.String())

	// Same ip, other user has its own window
	require.Equal(t, http.StatusOK, get(second).Code)

	// Anonymous requests are keyed by ip only, rejected after admission check anyway
	require.Equal(t, http.StatusUnauthorized, get(uuid.Nil).Code)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := NewRouter(fakeAuth{}, ratelimit.NewMemoryLimiter(ratelimit.Config{}), RouterConfig{}, logger.NewNoOpLogger())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	require.Equal(t, http.StatusMethodNotAllowed, w.Code, "auth endpoints accept POST only")
}
