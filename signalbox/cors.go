package signalbox

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS lets browser UIs served from origins call h.
// With no origins, h is returned as is.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(h)
}
