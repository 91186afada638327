package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goIAM "github.com/MrEthical07/goIAM"
)

// Verifier is the subset of *goIAM.Engine the guard needs.
type Verifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (goIAM.ActiveUser, error)
}

// Guard rejects requests without a valid bearer access token and attaches
// the verified identity with goIAM.WithActiveUser.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := v.VerifyAccess(r.Context(), token)
			if err != nil {
				if errors.Is(err, goIAM.ErrEngineNotReady) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(goIAM.WithActiveUser(r.Context(), user)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
