package auth

import (
	"net/http"
	"strings"
)

// Middleware verifies the Bearer token on every request and attaches the
// resulting claims to the request context. A nil verifier injects a mock
// local-dev user instead, which keeps local development free of Firebase
// setup.
func Middleware(verifier *FirebaseAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				ctx := WithUserClaims(r.Context(), &UserClaims{
					UID:      "local-dev-user",
					Email:    "dev@localhost",
					Verified: true,
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := verifier.VerifyToken(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}
