// Package middleware provides the admin API's cross-cutting HTTP
// concerns: bearer auth, owner scoping, and CORS. Grounded on the
// teacher's control_plane/middleware package of the same shape.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Tyrannozavr/steamParser/internal/auth"
)

type contextKey string

const ownerContextKey contextKey = "owner_id"
const roleContextKey contextKey = "role"

// AuthMiddleware rejects any request without a well-formed
// "Authorization: Bearer <token>" header and a token that validates,
// injecting the owner id and role into the request context on success.
func AuthMiddleware(issuer *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")

			claims, err := issuer.Validate(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, claims.OwnerID)
			ctx = context.WithValue(ctx, roleContextKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func OwnerFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ownerContextKey).(string)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleContextKey).(string)
	return v, ok
}
