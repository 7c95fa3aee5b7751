package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const corsPreflightMaxAge = 300

// CORS admits browser calls from origins; the app only issues GET and POST.
func CORS(origins []string) func(http.Handler) http.Handler {
	policy := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", IdempotencyKeyHeader, RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           corsPreflightMaxAge,
	})
	return policy.Handler
}
