package proxy

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
)

// Recovery turns handler panics into an Anthropic api_error response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			writeJSONAnthropicError(r.Context(), w, anthropicadapter.NewErrorResponse(
				anthropicadapter.ErrorTypeAPI, "internal server error",
			))
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit enforces maximum request body size.
// Handlers that read the body will receive *http.MaxBytesError when the limit is exceeded.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// allowAllOrigins lets browser clients on any origin call the API. Preflights
// are answered without reaching the router.
func allowAllOrigins() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID", "Request-Id"},
		MaxAge:         86400,
	})
}
