// Package api implements the twhost REST API and per-site hosting using chi.
package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
// If enabled is true, requests must carry a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type siteNameKey struct{}

// HostMiddleware sends requests for "<name>.<mainHost>" to sites, with the
// site name stored in the request context. Other requests, including the
// bare main host, go to next. An empty mainHost disables host routing.
func HostMiddleware(mainHost string, sites http.Handler) func(http.Handler) http.Handler {
	suffix := "." + strings.ToLower(mainHost)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mainHost == "" {
				next.ServeHTTP(w, r)
				return
			}
			name, ok := strings.CutSuffix(hostOnly(r.Host), suffix)
			if !ok || name == "" || strings.Contains(name, ".") {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), siteNameKey{}, name)
			sites.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
