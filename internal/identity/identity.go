// Package identity resolves the acting admin identity for the admin
// plane. There is no OAuth/session-cookie layer here — the acting
// uid/email are carried as request headers and injected into the
// request context, the same way an anonymous-identity middleware would
// inject a per-device identity.
package identity

import (
	"context"
	"net/http"
)

const (
	AdminUIDHeader = "X-Admin-UID"
	AdminEmailHeader = "X-Admin-Email"
)

type contextKey int

const (
	adminUIDKey contextKey = iota
	adminEmailKey
)

// AdminUIDFromContext extracts the acting admin's UID, or "" if absent.
func AdminUIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(adminUIDKey).(string)
	return v
}

// AdminEmailFromContext extracts the acting admin's email, or "" if absent.
func AdminEmailFromContext(ctx context.Context) string {
	v, _ := ctx.Value(adminEmailKey).(string)
	return v
}

// Middleware injects the caller-asserted admin uid/email into the
// request context; it does not itself authorize anything; route
// handlers consult internal/admin.ResolveAdminRoleForIdentity against
// the injected identity before acting.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), adminUIDKey, r.Header.Get(AdminUIDHeader))
			ctx = context.WithValue(ctx, adminEmailKey, r.Header.Get(AdminEmailHeader))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns r.RemoteAddr as-is (host:port, not normalized) for
// optional request tracing.
func IPFromRequest(r *http.Request) string {
	return r.RemoteAddr
}
