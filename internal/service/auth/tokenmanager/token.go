package tokenmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/logger"
	"github.com/nkiryanov/queuedesk/internal/models"
	"github.com/nkiryanov/queuedesk/internal/repository"
)

const (
	defaultRefreshTokenTTL  = 30 * 24 * time.Hour
	defaultRevokedRetention = 7 * 24 * time.Hour

	// Random bytes in refresh secret
	refreshSecretSize = 32
)

// Called when already rotated refresh token is presented again
// It runs after the rotation transaction is rolled back
type ReplayHook func(ctx context.Context, userID uuid.UUID)

// Token manager with sensible default
type Config struct {
	// Refresh token lifetime
	// If not set than default is used
	RefreshTTL time.Duration

	// How long revoked tokens are kept to detect replays
	// If not set than default is used
	RevokedRetention time.Duration

	// Optional. Replay is logged anyway
	OnReplay ReplayHook

	// Clock, time.Now if not set
	Now func() time.Time
}

type accessIssuer interface {
	Issue(identity models.Identity, ttl time.Duration) (models.IssuedToken, error)
}

type TokenManager struct {
	codec   accessIssuer
	storage repository.Storage
	logger  logger.Logger

	refreshTTL       time.Duration
	revokedRetention time.Duration
	onReplay         ReplayHook
	now              func() time.Time
}

func New(cfg Config, codec accessIssuer, storage repository.Storage, l logger.Logger) (*TokenManager, error) {
	if codec == nil || storage == nil {
		return nil, errors.New("codec and storage must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field <= 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)
	setDefaultDuration(&cfg.RevokedRetention, defaultRevokedRetention)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		codec:            codec,
		storage:          storage,
		logger:           l,
		refreshTTL:       cfg.RefreshTTL,
		revokedRetention: cfg.RevokedRetention,
		onReplay:         cfg.OnReplay,
		now:              cfg.Now,
	}, nil
}

// Set replay hook after manager is created
// Useful when hook needs the manager itself (revoke every user session on replay)
func (m *TokenManager) SetReplayHook(hook ReplayHook) {
	m.onReplay = hook
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Issue new pair on login or registration
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair

	err := m.storage.InTx(ctx, func(s repository.Storage) (err error) {
		pair, err = m.issuePair(ctx, s, user, m.now())
		return err
	})

	return pair, err
}

// Exchange refresh secret for the new pair
// Presented token is revoked and the new one is stored in the same transaction
func (m *TokenManager) Rotate(ctx context.Context, secret string) (models.TokenPair, models.User, error) {
	var pair models.TokenPair
	var user models.User
	var replayedBy uuid.UUID

	now := m.now()
	hash := hashSecret(secret)

	err := m.storage.InTx(ctx, func(s repository.Storage) error {
		token, err := s.Refresh().GetByHash(ctx, hash)
		if err != nil {
			return err
		}

		switch {
		case token.IsRevoked():
			replayedBy = token.UserID
			return fmt.Errorf("token %s: %w", token.ID, apperrors.ErrRefreshTokenReused)
		case token.IsExpired(now):
			return fmt.Errorf("token %s: %w", token.ID, apperrors.ErrRefreshTokenExpired)
		}

		err = s.Refresh().Revoke(ctx, token.ID, now)
		if err != nil {
			return err
		}

		user, err = s.User().GetUserByID(ctx, token.UserID)
		if err != nil {
			return err
		}

		pair, err = m.issuePair(ctx, s, user, now)
		return err
	})

	if replayedBy != uuid.Nil {
		m.logger.Warn("security event", "event", "refresh_token_replay", "user_id", replayedBy)
		if m.onReplay != nil {
			m.onReplay(context.WithoutCancel(ctx), replayedBy)
		}
	}

	if err != nil {
		return models.TokenPair{}, models.User{}, fmt.Errorf("refresh rotation failed: %w", err)
	}

	return pair, user, nil
}

// Revoke one session
// Unknown or already revoked secrets are ignored: logout has to succeed anyway
func (m *TokenManager) Revoke(ctx context.Context, secret string) error {
	return m.storage.InTx(ctx, func(s repository.Storage) error {
		token, err := s.Refresh().GetByHash(ctx, hashSecret(secret))
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			return nil
		case err != nil:
			return err
		case token.IsRevoked():
			return nil
		}

		return s.Refresh().Revoke(ctx, token.ID, m.now())
	})
}

// Revoke every active user session
func (m *TokenManager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := m.storage.Refresh().RevokeAllForUser(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("error while revoking user tokens. Err: %w", err)
	}

	m.logger.Info("user sessions revoked", "user_id", userID, "count", count)
	return count, nil
}

// Delete expired tokens and revoked ones older than retention window
func (m *TokenManager) SweepExpired(ctx context.Context) (int64, error) {
	now := m.now()
	count, err := m.storage.Refresh().DeleteTerminal(ctx, now, now.Add(-m.revokedRetention))
	if err != nil {
		return 0, fmt.Errorf("error while sweeping refresh tokens. Err: %w", err)
	}
	return count, nil
}

func (m *TokenManager) issuePair(ctx context.Context, s repository.Storage, user models.User, now time.Time) (models.TokenPair, error) {
	var pair models.TokenPair

	secret, err := newSecret()
	if err != nil {
		return pair, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}

	refreshExpiresAt := now.Add(m.refreshTTL)
	_, err = s.Refresh().Create(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashSecret(secret),
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	access, err := m.codec.Issue(user.Identity(), 0)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: secret, ExpiresAt: refreshExpiresAt},
	}, nil
}

func newSecret() (string, error) {
	b := make([]byte, refreshSecretSize)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
