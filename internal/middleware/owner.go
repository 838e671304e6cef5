package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stashd/stash/internal/request"
)

// OwnerHeader carries the caller's identity. The service trusts the
// gateway in front of it to have authenticated the request.
const OwnerHeader = "X-Owner-ID"

// Owner creates middleware that extracts the owner id from the
// X-Owner-ID header and attaches it to the request context.
func Owner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(OwnerHeader))
			if raw == "" {
				respondError(w, http.StatusUnauthorized, "Missing X-Owner-ID header")
				return
			}

			ownerID, err := uuid.Parse(raw)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Invalid X-Owner-ID header")
				return
			}

			ctx := request.WithOwner(r.Context(), ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success": false,
		"error":   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
