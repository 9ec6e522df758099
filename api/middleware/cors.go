package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const localFrontendOrigin = "http://localhost:5173"

// CORS allows the storefront to call the verify and status endpoints.
func CORS(frontendURL string, allowLocal bool) func(http.Handler) http.Handler {
	origins := []string{}
	if frontendURL != "" {
		origins = append(origins, frontendURL)
	}
	if allowLocal {
		origins = append(origins, localFrontendOrigin)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
