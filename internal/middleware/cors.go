package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORS builds the cross-origin policy for the browser frontend. The
// allowed header set includes the owner header every API call carries.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", OwnerHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}

// CORSFromEnv parses FRONTEND_URL (comma-separated origins, defaulting
// to the local dev frontend) into CORS middleware.
func CORSFromEnv(frontendURL string) func(http.Handler) http.Handler {
	origins := []string{"http://localhost:3000"}
	for _, origin := range strings.Split(frontendURL, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		duplicate := false
		for _, existing := range origins {
			if existing == trimmed {
				duplicate = true
				break
			}
		}
		if !duplicate {
			origins = append(origins, trimmed)
		}
	}
	return CORS(origins)
}
