package middleware

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcadmin/internal/rbac"
)

// RBAC rejects authenticated users lacking perm before any handler runs.
// Finer checks happen per model and action. An empty perm admits everyone.
func RBAC(api huma.API, authz rbac.Authorizer, perm string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		u, ok := UserFromContext(ctx.Context())
		if !ok || perm == "" || authz.HasPerm(u, perm) {
			next(ctx)
			return
		}
		huma.WriteErr(api, ctx, http.StatusForbidden, "forbidden")
	}
}
