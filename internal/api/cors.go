package api

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS lets the browser front end call the API from the origins listed. "*"
// allows any origin. Preflight requests are answered with 204 and never
// reach next.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Traceparent", "Tracestate"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         600,
	}).Handler
}
