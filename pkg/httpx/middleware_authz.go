package httpx

import (
	"net/http"
	"strings"
)

// RequireAnyRole the caller's role claim must match one of the listed roles.
func RequireAnyRole(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, r := range required {
		want[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := want[RoleFromContext(r.Context())]; !ok {
				writeRoleError(w, required...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRoleError(w http.ResponseWriter, required ...string) {
	w.Header().Set("WWW-Authenticate",
		`Bearer error="insufficient_scope", scope="role:`+strings.Join(required, " role:")+`"`)
	WriteJSON(w, http.StatusForbidden, map[string]string{
		"error":             "insufficient_role",
		"error_description": "This operation requires role: " + strings.Join(required, " or "),
	})
}
