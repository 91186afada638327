package middleware

import (
	"net/http"
	"strings"

	goIAM "github.com/MrEthical07/goIAM"
)

// RequireRole allows the request only when the identity attached by [Guard]
// carries one of roles. It must run after Guard.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := goIAM.ActiveUserFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !HasRole(user, roles...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasRole reports whether user holds any of roles, compared case-insensitively.
func HasRole(user goIAM.ActiveUser, roles ...string) bool {
	for _, role := range roles {
		if strings.EqualFold(user.Role, role) {
			return true
		}
	}
	return false
}
