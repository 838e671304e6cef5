package middleware

import (
	"context"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds synchronous request handling. Agent chat
// turns are the slowest path and stay well under this; everything
// slower runs through the job queue.
const DefaultRequestTimeout = 30 * time.Second

// Timeout enforces a deadline on request handlers. The context deadline
// propagates to repository and model calls so they abort together.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		handler := http.TimeoutHandler(next, timeout, "Request Timeout")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			handler.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
