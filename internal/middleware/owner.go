package middleware

import "net/http"

// RequireOwnerMatch rejects a request whose path-derived owner id
// doesn't match the authenticated token's owner id, unless the token
// carries the "admin" role. Renamed from the teacher's tenant-header
// scoping (middleware/tenant.go) since ownership here comes from the
// JWT claims set at token issue, not a client-supplied header.
func RequireOwnerMatch(pathOwnerID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, ok := OwnerFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			role, _ := RoleFromContext(r.Context())
			if role == "admin" {
				next.ServeHTTP(w, r)
				return
			}
			if want := pathOwnerID(r); want != "" && want != owner {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
