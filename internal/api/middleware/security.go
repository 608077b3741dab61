package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/nextstop/nextstop/internal/api/models"
)

// opsPrefix covers the health and status endpoints polled by the load balancer.
const opsPrefix = "/v1/ops/"

// privatePrefixes serve per-device data: tokens, settings, recents and watch
// sessions. Shared caches must not keep them.
var privatePrefixes = []string{"/v1/auth/", "/v1/me/", "/v1/watches"}

// SecurityHeaders adds the API's security headers to every response.
// Responses carrying per-device data are additionally marked no-store.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		if isPrivatePath(r.URL.Path) {
			h.Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}

func isPrivatePath(path string) bool {
	for _, prefix := range privatePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequireTLS rejects requests the load balancer forwarded over plain HTTP.
// Enabled with REQUIRE_TLS=true. Ops endpoints stay reachable so health
// checks on the internal port keep working.
func RequireTLS(next http.Handler) http.Handler {
	requireTLS := os.Getenv("REQUIRE_TLS") == "true"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requireTLS && !strings.HasPrefix(r.URL.Path, opsPrefix) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto != "" && proto != "https" {
				models.NewTLSRequired(GetRequestID(r.Context()), r.URL.Path).Write(w)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
