package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/models"
	"github.com/nkiryanov/queuedesk/internal/repository"
)

const (
	defaultAccessCookieName  = "access_token"
	defaultRefreshCookieName = "refresh_token"
	defaultRefreshCookiePath = "/api/auth"
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type tokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	Rotate(ctx context.Context, secret string) (models.TokenPair, models.User, error)
	Revoke(ctx context.Context, secret string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
	RefreshTTL() time.Duration
}

type accessVerifier interface {
	Verify(token string) (models.Identity, error)
	Peek(token string) (uuid.UUID, error)
	TTL() time.Duration
}

type Config struct {
	// Hasher to use during user registration or login process
	// BcryptHasher if not set
	Hasher PasswordHasher

	// Set 'Secure' attribute to auth cookies
	// Has to be true everywhere except local development over plain http
	CookieSecure bool
}

type AuthService struct {
	tokens   tokenManager
	codec    accessVerifier
	userRepo repository.UserRepo
	hasher   PasswordHasher

	accessCookieName  string
	refreshCookieName string
	refreshCookiePath string
	accessHeaderName  string
	accessAuthScheme  string
	cookieSecure      bool

	// Hash compared when user not found, so missing users take as long as wrong passwords
	dummyHash func() string
}

func NewService(cfg Config, tokens tokenManager, codec accessVerifier, userRepo repository.UserRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	s := &AuthService{
		tokens:            tokens,
		codec:             codec,
		userRepo:          userRepo,
		hasher:            hasher,
		accessCookieName:  defaultAccessCookieName,
		refreshCookieName: defaultRefreshCookieName,
		refreshCookiePath: defaultRefreshCookiePath,
		accessHeaderName:  defaultAccessHeaderName,
		accessAuthScheme:  defaultAccessAuthScheme,
		cookieSecure:      cfg.CookieSecure,
	}
	s.dummyHash = sync.OnceValue(func() string {
		h, _ := hasher.Hash("not-a-real-password")
		return h
	})

	return s, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register new client and issue token pair
func (s *AuthService) Register(ctx context.Context, email string, password string) (models.TokenPair, models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.TokenPair{}, models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, normalizeEmail(email), hash, models.RoleClient)
	if err != nil {
		return models.TokenPair{}, models.User{}, err
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, models.User{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, user, nil
}

// Login user with email and password
// Unknown email and wrong password are not distinguished: both are apperrors.ErrUserNotFound
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummyHash(), password)
		return models.TokenPair{}, models.User{}, apperrors.ErrUserNotFound
	case err != nil:
		return models.TokenPair{}, models.User{}, err
	}

	err = s.hasher.Compare(user.HashedPassword, password)
	if err != nil {
		return models.TokenPair{}, models.User{}, apperrors.ErrUserNotFound
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, models.User{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, user, nil
}

// Exchange refresh token for the new pair
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, models.User, error) {
	return s.tokens.Rotate(ctx, refresh)
}

// Revoke session of the refresh token
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	return s.tokens.Revoke(ctx, refresh)
}

// Revoke every user session: logout everywhere or administrative revoke
func (s *AuthService) RevokeSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.tokens.RevokeAll(ctx, userID)
}

// Set auth tokens (access, refresh) to response
// Access token is set as cookie and header, refresh token only as cookie scoped to auth endpoints
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.accessCookieName,
		Value:    pair.Access.Value,
		Path:     "/",
		MaxAge:   int(s.codec.TTL().Seconds()),
		Expires:  pair.Access.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     s.refreshCookiePath,
		MaxAge:   int(s.tokens.RefreshTTL().Seconds()),
		Expires:  pair.Refresh.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Expire auth cookies on client
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{s.accessCookieName, "/"},
		{s.refreshCookieName, s.refreshCookiePath},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   s.cookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// Get refresh token from request cookie
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", apperrors.ErrRefreshTokenNotFound
	}
	return cookie.Value, nil
}

// Get access token from cookie or 'Authorization' header
func (s *AuthService) accessString(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(s.accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get(s.accessHeaderName)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || strings.TrimSpace(token) == "" {
		return "", apperrors.ErrAccessTokenNotFound
	}

	return strings.TrimSpace(token), nil
}

// Admit request: return user the request is authenticated as
// Storage is only read, never changed
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (models.User, error) {
	token, err := s.accessString(r)
	if err != nil {
		return models.User{}, err
	}

	identity, err := s.codec.Verify(token)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return models.User{}, err
	}

	// Email changed since token was issued
	if !strings.EqualFold(user.Email, identity.Email) {
		return models.User{}, apperrors.ErrAccessTokenStale
	}

	return user, nil
}

// User id from the access token with valid signature or empty string
// Expiration is not checked, result is good for request keying only
func (s *AuthService) PeekUserID(r *http.Request) string {
	token, err := s.accessString(r)
	if err != nil {
		return ""
	}

	userID, err := s.codec.Peek(token)
	if err != nil {
		return ""
	}

	return userID.String()
}
