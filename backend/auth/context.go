package auth

import (
	"context"

	"github.com/PhilHem/gamepanel/backend/models"
)

type userKey struct{}

// WithUser stores the guarded request's user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the user stored by WithUser, or nil.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey{}).(*models.User)
	return u
}
