package credential

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/models"
)

const (
	defaultTTL      = 15 * time.Minute
	defaultIssuer   = "queuedesk"
	defaultAudience = "queuedesk-api"
)

// Claims of the access token
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID   `json:"uid"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

type Config struct {
	// Key to sign tokens. If nil codec only verifies tokens
	PrivateKey *rsa.PrivateKey

	// Key to verify tokens
	// Required to be set
	PublicKey *rsa.PublicKey

	// Expected 'iss' and 'aud' claims
	// If not set than default is used
	Issuer   string
	Audience string

	// Access token lifetime
	// If not set than default is used
	TTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

// Codec issues and verifies RS256 signed access tokens
// It never touches storage, so it safe to use from any goroutine
type Codec struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

func New(cfg Config) (*Codec, error) {
	if cfg.PublicKey == nil {
		return nil, errors.New("public key must not be empty")
	}
	if cfg.PrivateKey != nil && !cfg.PrivateKey.PublicKey.Equal(cfg.PublicKey) {
		return nil, errors.New("private and public keys are not a pair")
	}

	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = defaultAudience
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        cfg.TTL,
		now:        cfg.Now,
	}, nil
}

// Default access token lifetime
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signed access token for identity
// ttl <= 0 means default codec TTL
func (c *Codec) Issue(identity models.Identity, ttl time.Duration) (models.IssuedToken, error) {
	if c.privateKey == nil {
		return models.IssuedToken{}, errors.New("codec has no private key, it can only verify tokens")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   identity.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
	})

	signed, err := token.SignedString(c.privateKey)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify token signature and claims and return identity it was issued for
func (c *Codec) Verify(token string) (models.Identity, error) {
	claims := &AccessClaims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.publicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return models.Identity{}, classify(err)
	}

	if claims.UserID == uuid.Nil || claims.Email == "" || claims.Role == "" {
		return models.Identity{}, fmt.Errorf("required claims missing: %w", apperrors.ErrAccessTokenMalformed)
	}

	return models.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// Peek returns user id of the token with valid signature, even expired one
// It must not be used to admit requests, only to key them (rate limiting)
func (c *Codec) Peek(token string) (uuid.UUID, error) {
	claims := &AccessClaims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.publicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return uuid.Nil, classify(err)
	}
	if claims.UserID == uuid.Nil {
		return uuid.Nil, apperrors.ErrAccessTokenMalformed
	}

	return claims.UserID, nil
}

// Map jwt library errors to the well known ones
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", apperrors.ErrAccessTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %w", apperrors.ErrAccessTokenMalformed, err)
	default:
		// bad signature, unexpected alg, issuer or audience
		return fmt.Errorf("%w: %w", apperrors.ErrAccessTokenSignatureInvalid, err)
	}
}
