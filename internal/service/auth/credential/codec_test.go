package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/queuedesk/internal/apperrors"
	"github.com/nkiryanov/queuedesk/internal/models"
	"github.com/nkiryanov/queuedesk/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

// Clock that moves only when test asks it
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func Test_Codec(t *testing.T) {
	t.Parallel()

	keys := testutil.WriteKeyPair(t)
	otherKeys := testutil.WriteKeyPair(t)

	identity := models.Identity{
		UserID: uuid.New(),
		Email:  "nurse@example.com",
		Role:   models.RoleAttendant,
	}

	newCodec := func(t *testing.T, c *clock) *Codec {
		codec, err := New(Config{
			PrivateKey: keys.PrivateKey,
			PublicKey:  &keys.PrivateKey.PublicKey,
			Issuer:     "queuedesk-test",
			Audience:   "queuedesk-test-api",
			TTL:        15 * time.Minute,
			Now:        c.Now,
		})
		require.NoError(t, err, "codec should be created without errors")
		return codec
	}

	t.Run("new defaults", func(t *testing.T) {
		codec, err := New(Config{PublicKey: &keys.PrivateKey.PublicKey})
		require.NoError(t, err)

		assert.Equal(t, defaultTTL, codec.TTL())
		assert.Equal(t, defaultIssuer, codec.issuer)
		assert.Equal(t, defaultAudience, codec.audience)
	})

	t.Run("new without public key fail", func(t *testing.T) {
		_, err := New(Config{PrivateKey: keys.PrivateKey})

		require.Error(t, err)
	})

	t.Run("new with not paired keys fail", func(t *testing.T) {
		_, err := New(Config{PrivateKey: keys.PrivateKey, PublicKey: &otherKeys.PrivateKey.PublicKey})

		require.Error(t, err)
	})

	t.Run("issue and verify round trip", func(t *testing.T) {
		c := &clock{now: mustParseTime("2025-01-01 10:00:00Z")}
		codec := newCodec(t, c)

		token, err := codec.Issue(identity, 0)
		require.NoError(t, err)
		require.Equal(t, c.now.Add(15*time.Minute), token.ExpiresAt, "default ttl has to be used")

		got, err := codec.Verify(token.Value)

		require.NoError(t, err)
		require.Equal(t, identity, got)
	})

	t.Run("registered claims", func(t *testing.T) {
		c := &clock{now: mustParseTime("2025-01-01 10:00:00Z")}
		codec := newCodec(t, c)

		token, err := codec.Issue(identity, time.Minute)
		require.NoError(t, err)

		claims := &AccessClaims{}
		_, _, err = jwt.NewParser().ParseUnverified(token.Value, claims)
		require.NoError(t, err)
		assert.Equal(t, "queuedesk-test", claims.Issuer)
		assert.Equal(t, jwt.ClaimStrings{"queuedesk-test-api"}, claims.Audience)
		assert.Equal(t, identity.UserID.String(), claims.Subject)
		assert.NotEmpty(t, claims.ID, "token has to has jti")
		assert.Equal(t, c.now, claims.IssuedAt.Time.UTC())
		assert.Equal(t, c.now.Add(time.Minute), claims.ExpiresAt.Time.UTC())
	})

	t.Run("expired after ttl", func(t *testing.T) {
		c := &clock{now: mustParseTime("2025-01-01 10:00:00Z")}
		codec := newCodec(t, c)
		token, err := codec.Issue(identity, time.Minute)
		require.NoError(t, err)

		c.Advance(59 * time.Second)
		_, err = codec.Verify(token.Value)
		require.NoError(t, err, "token still valid before ttl elapsed")

		c.Advance(time.Second)
		_, err = codec.Verify(token.Value)
		require.ErrorIs(t, err, apperrors.ErrAccessTokenExpired)
	})

	t.Run("verify fail", func(t *testing.T) {
		c := &clock{now: mustParseTime("2025-01-01 10:00:00Z")}
		codec := newCodec(t, c)
		valid, err := codec.Issue(identity, 0)
		require.NoError(t, err)

		signWith := func(method jwt.SigningMethod, key any, claims AccessClaims) string {
			s, err := jwt.NewWithClaims(method, claims).SignedString(key)
			require.NoError(t, err)
			return s
		}
		baseClaims := func() AccessClaims {
			return AccessClaims{
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    "queuedesk-test",
					Audience:  jwt.ClaimStrings{"queuedesk-test-api"},
					IssuedAt:  jwt.NewNumericDate(c.now),
					ExpiresAt: jwt.NewNumericDate(c.now.Add(time.Minute)),
				},
				UserID: identity.UserID,
				Email:  identity.Email,
				Role:   identity.Role,
			}
		}

		parts := strings.Split(valid.Value, ".")
		tamperedPayload := signWith(jwt.SigningMethodRS256, keys.PrivateKey, func() AccessClaims {
			cl := baseClaims()
			cl.Role = models.RoleAdmin
			return cl
		}())
		tampered := parts[0] + "." + strings.Split(tamperedPayload, ".")[1] + "." + parts[2]

		wrongIssuer := baseClaims()
		wrongIssuer.Issuer = "somebody-else"
		wrongAudience := baseClaims()
		wrongAudience.Audience = jwt.ClaimStrings{"other-api"}
		noExpiration := baseClaims()
		noExpiration.ExpiresAt = nil
		noUser := baseClaims()
		noUser.UserID = uuid.Nil

		hmacKey := []byte("not-a-secret")

		tests := []struct {
			name        string
			token       string
			expectedErr error
		}{
			{"not a token", "invalid token", apperrors.ErrAccessTokenMalformed},
			{"empty", "", apperrors.ErrAccessTokenMalformed},
			{"tampered payload", tampered, apperrors.ErrAccessTokenSignatureInvalid},
			{"signed with other key", signWith(jwt.SigningMethodRS256, otherKeys.PrivateKey, baseClaims()), apperrors.ErrAccessTokenSignatureInvalid},
			{"hmac algorithm", signWith(jwt.SigningMethodHS256, hmacKey, baseClaims()), apperrors.ErrAccessTokenSignatureInvalid},
			{"none algorithm", signWith(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, baseClaims()), apperrors.ErrAccessTokenSignatureInvalid},
			{"wrong issuer", signWith(jwt.SigningMethodRS256, keys.PrivateKey, wrongIssuer), apperrors.ErrAccessTokenSignatureInvalid},
			{"wrong audience", signWith(jwt.SigningMethodRS256, keys.PrivateKey, wrongAudience), apperrors.ErrAccessTokenSignatureInvalid},
			{"no expiration", signWith(jwt.SigningMethodRS256, keys.PrivateKey, noExpiration), apperrors.ErrAccessTokenMalformed},
			{"no user id", signWith(jwt.SigningMethodRS256, keys.PrivateKey, noUser), apperrors.ErrAccessTokenMalformed},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := codec.Verify(tt.token)

				require.Error(t, err)
				require.ErrorIs(t, err, tt.expectedErr)
			})
		}
	})

	t.Run("verify only codec", func(t *testing.T) {
		c := &clock{now: time.Now()}
		issuer := newCodec(t, c)
		verifier, err := New(Config{
			PublicKey: &keys.PrivateKey.PublicKey,
			Issuer:    "queuedesk-test",
			Audience:  "queuedesk-test-api",
			Now:       c.Now,
		})
		require.NoError(t, err)

		_, err = verifier.Issue(identity, 0)
		require.Error(t, err, "codec without private key must not issue tokens")

		token, err := issuer.Issue(identity, 0)
		require.NoError(t, err)
		got, err := verifier.Verify(token.Value)
		require.NoError(t, err)
		require.Equal(t, identity, got)
	})
}

func Test_Codec_Peek(t *testing.T) {
	t.Parallel()

	keys := testutil.WriteKeyPair(t)
	otherKeys := testutil.WriteKeyPair(t)
	c := &clock{now: mustParseTime("2025-01-01 10:00:00Z")}
	codec, err := New(Config{PrivateKey: keys.PrivateKey, PublicKey: &keys.PrivateKey.PublicKey, Now: c.Now})
	require.NoError(t, err)
	foreign, err := New(Config{PrivateKey: otherKeys.PrivateKey, PublicKey: &otherKeys.PrivateKey.PublicKey, Now: c.Now})
	require.NoError(t, err)
	userID := uuid.New()

	t.Run("expired token peeked", func(t *testing.T) {
		token, err := codec.Issue(models.Identity{UserID: userID, Email: "a@example.com", Role: models.RoleClient}, time.Minute)
		require.NoError(t, err)
		c.Advance(time.Hour)

		got, err := codec.Peek(token.Value)

		require.NoError(t, err)
		require.Equal(t, userID, got)
	})

	t.Run("foreign signature rejected", func(t *testing.T) {
		token, err := foreign.Issue(models.Identity{UserID: userID, Email: "a@example.com", Role: models.RoleClient}, time.Minute)
		require.NoError(t, err)

		_, err = codec.Peek(token.Value)

		require.ErrorIs(t, err, apperrors.ErrAccessTokenSignatureInvalid)
	})
}

func Test_LoadKeys(t *testing.T) {
	t.Parallel()

	keys := testutil.WriteKeyPair(t)

	t.Run("load ok", func(t *testing.T) {
		private, public, err := LoadKeys(keys.PrivateKeyPath, keys.PublicKeyPath)

		require.NoError(t, err)
		require.True(t, keys.PrivateKey.Equal(private))
		require.True(t, keys.PrivateKey.PublicKey.Equal(public))
	})

	t.Run("public only", func(t *testing.T) {
		private, public, err := LoadKeys("", keys.PublicKeyPath)

		require.NoError(t, err)
		require.Nil(t, private)
		require.NotNil(t, public)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadKeys(filepath.Join(t.TempDir(), "nope.pem"), keys.PublicKeyPath)

		require.Error(t, err)
	})

	t.Run("not a pem", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.pem")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

		_, _, err := LoadKeys("", path)

		require.Error(t, err)
	})

	t.Run("generated keys load", func(t *testing.T) {
		private, public, err := GenerateKeys(MinKeyBits)
		require.NoError(t, err)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "private.pem"), private, 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "public.pem"), public, 0o600))

		privateKey, publicKey, err := LoadKeys(filepath.Join(dir, "private.pem"), filepath.Join(dir, "public.pem"))

		require.NoError(t, err)
		require.True(t, privateKey.PublicKey.Equal(publicKey))
	})

	t.Run("small key refused", func(t *testing.T) {
		_, _, err := GenerateKeys(1024)

		require.Error(t, err)
	})

	t.Run("generated key fits", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		_, err = New(Config{PrivateKey: key, PublicKey: &key.PublicKey})
		require.NoError(t, err)
	})
}
