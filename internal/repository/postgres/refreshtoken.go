package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, token_hash, created_at, expires_at, revoked_at
`

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, createToken, token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.RevokedAt)
	created, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const getTokenByHash = `-- name: GetRefreshTokenByHash
SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
FROM refresh_tokens
WHERE token_hash = $1
FOR UPDATE
`

// Get token by secret hash and lock the row
// It returns result even it expired or revoked already
func (r *RefreshTokenRepo) GetByHash(ctx context.Context, tokenHash []byte) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByHash, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET revoked_at = $2
WHERE id = $1 AND revoked_at IS NULL
`

const tokenExists = `-- name: RefreshTokenExists
SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)
`

// Revoke token
// Already revoked token is not touched and ErrRefreshTokenReused returned
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, revokeToken, tokenID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.DB.QueryRow(ctx, tokenExists, tokenID).Scan(&exists)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case exists:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenReused)
	default:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}
}

const revokeAllForUser = `-- name: RevokeAllUserRefreshTokens
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForUser, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteTerminal = `-- name: DeleteTerminalRefreshTokens
DELETE FROM refresh_tokens
WHERE (revoked_at IS NULL AND expires_at < $1)
   OR (revoked_at IS NOT NULL AND revoked_at < $2)
`

// Delete tokens that can't be used anymore
// Revoked tokens are kept until 'revokedBefore' so replays are still detected
func (r *RefreshTokenRepo) DeleteTerminal(ctx context.Context, now time.Time, revokedBefore time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteTerminal, now, revokedBefore)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt)
	return t, err
}
