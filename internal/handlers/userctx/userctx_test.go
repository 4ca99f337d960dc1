package userctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/queuedesk/internal/models"
)

func TestUserCtx(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		_, ok := FromContext(context.Background())

		require.False(t, ok)
		require.Equal(t, uuid.Nil, UserID(context.Background()))
	})

	t.Run("user attached", func(t *testing.T) {
		user := models.User{ID: uuid.New(), Email: "a@example.com", Role: models.RoleAdmin}
		ctx := New(context.Background(), user)

		got, ok := FromContext(ctx)

		require.True(t, ok)
		require.Equal(t, user, got)
		require.Equal(t, user.ID, UserID(ctx))
	})
}
