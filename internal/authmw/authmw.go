// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

const bearerPrefix = "Bearer "

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. Comparison uses
// constant-time equality.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, bearerPrefix) {
				unauthorized(w, r, "missing or malformed authorization header")
				return
			}

			got := []byte(auth[len(bearerPrefix):])

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				unauthorized(w, r, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Optional is BearerToken when token is set and a pass-through otherwise, so
// local deployments can run the API without credentials.
func Optional(token string) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return BearerToken(token)
}

func unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	log.FromContext(r.Context()).Warn(r.Context(), "request rejected by bearer auth", "reason", reason, "path", r.URL.Path)
	w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + reason + `"}` + "\n"))
}
