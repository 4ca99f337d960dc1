package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/queuedesk/internal/models"
)

// Storage gives access to repositories sharing one connection (or one transaction)
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	// Repositories returned by the storage passed to fn share the transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, hashedPassword string, role models.Role) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// RefreshToken repository interface
// Only hashes of the refresh secrets are passed to the repository
type RefreshTokenRepo interface {
	// Save token in repository
	Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even it expired or revoked already
	// The row stays locked until the transaction ends, so concurrent rotations of the same token are serialized
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	GetByHash(ctx context.Context, tokenHash []byte) (models.RefreshToken, error)

	// Mark token revoked
	// Must not overwrite existing 'revoked_at': return apperrors.ErrRefreshTokenReused instead
	Revoke(ctx context.Context, tokenID uuid.UUID, at time.Time) error

	// Mark every not revoked user token revoked, return count of revoked tokens
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)

	// Delete not revoked tokens expired before 'now' and tokens revoked before 'revokedBefore'
	DeleteTerminal(ctx context.Context, now time.Time, revokedBefore time.Time) (int64, error)
}
