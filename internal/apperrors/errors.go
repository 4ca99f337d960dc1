package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Access token verification failures
	// Externally all of them are rendered as the same 'Unauthorized' response
	ErrAccessTokenMalformed        = errors.New("access token is malformed")
	ErrAccessTokenSignatureInvalid = errors.New("access token signature is invalid")
	ErrAccessTokenExpired          = errors.New("access token is expired")
	ErrAccessTokenStale            = errors.New("access token identity is stale")
	ErrAccessTokenNotFound         = errors.New("access token not found")

	// Refresh token rotation failures
	// Externally all of them are rendered as the same 'Invalid session' response
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenReused   = errors.New("refresh token is reused")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
)
