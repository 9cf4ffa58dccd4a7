package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"

	sm "github.com/faciam-dev/gcadmin/internal/server/middleware"
)

// Middleware validates bearer tokens and stores the user and claims in the
// request context. Operations listed in public skip the check.
func Middleware(api huma.API, j *JWT, public ...string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && slices.Contains(public, op.OperationID) {
			next(ctx)
			return
		}
		r, w := humachi.Unwrap(ctx)
		authHdr := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHdr, "Bearer ") {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := j.Validate(strings.TrimPrefix(authHdr, "Bearer "))
		if err != nil {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")
			return
		}
		c := sm.WithUser(r.Context(), claims.User())
		c = sm.WithClaims(c, claims)
		next(humachi.NewContext(ctx.Operation(), r.WithContext(c), w))
	}
}
