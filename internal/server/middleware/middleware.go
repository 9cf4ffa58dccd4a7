package middleware

import (
	"context"

	"github.com/faciam-dev/gcadmin/internal/rbac"
)

// ctxKey is used for storing values in request context.
type ctxKey string

const (
	userKey   ctxKey = "user"
	claimsKey ctxKey = "claims"
)

// WithUser stores the acting principal in ctx.
func WithUser(ctx context.Context, u rbac.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the principal stored by WithUser.
func UserFromContext(ctx context.Context) (rbac.User, bool) {
	u, ok := ctx.Value(userKey).(rbac.User)
	return u, ok
}

// WithClaims stores the validated token claims in ctx.
func WithClaims(ctx context.Context, claims any) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims, or nil.
func ClaimsFromContext(ctx context.Context) any { return ctx.Value(claimsKey) }
