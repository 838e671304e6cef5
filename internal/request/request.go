package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// OwnerContextKey returns the context key used for the owner. Exposed for tests that inject non-owner values.
func OwnerContextKey() contextKey { return ownerContextKey }

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// WithOwner returns a context with the owner id attached.
func WithOwner(ctx context.Context, ownerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerContextKey, ownerID)
}

// OwnerFromContext returns the owner id from the request context and
// whether one was set.
func OwnerFromContext(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(ownerContextKey).(uuid.UUID)
	return id, ok
}
