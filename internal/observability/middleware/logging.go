package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration.
// Successful health probes are not logged.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Never log credentials (x-api-key, Authorization) or bodies.
		LogRequestHeaders:  []string{"Content-Type", "Origin", "Anthropic-Version", "User-Agent"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		Skip: skipHealthProbes,

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})
}

func skipHealthProbes(r *http.Request, status int) bool {
	return status < http.StatusBadRequest && strings.HasPrefix(r.URL.Path, "/health/")
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
