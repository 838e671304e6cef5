package middleware

import (
	"net/http"
)

// DefaultMaxRequestSize caps request bodies. Article captures can carry
// a full extracted page, so the ceiling is deliberately generous.
const DefaultMaxRequestSize int64 = 2 << 20 // 2MB

// MaxRequestSize rejects oversized request bodies before handlers read
// them.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			defer r.Body.Close()

			next.ServeHTTP(w, r)
		})
	}
}
