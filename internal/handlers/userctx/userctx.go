package userctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/queuedesk/internal/models"
)

type ctxKey struct{}

// Create a new context with the admitted user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// Extract the user from the context
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}

// Admitted user id or uuid.Nil
func UserID(ctx context.Context) uuid.UUID {
	u, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return u.ID
}
