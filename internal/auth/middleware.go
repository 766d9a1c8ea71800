// Package auth guards the journal's write endpoints with a shared API key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// keyFromRequest reads the key from X-API-Key or a bearer token
func keyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Middleware returns an HTTP middleware that requires the configured API key.
// An empty key rejects every request so that write routes are never open by
// accident.
func Middleware(apiKey string, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Writes are disabled: SERVER_API_KEY is not set")
				return
			}

			key := keyFromRequest(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
