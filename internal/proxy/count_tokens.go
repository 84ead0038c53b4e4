package proxy

import (
	"log/slog"
	"net/http"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/observability/middleware"
)

// CountTokensHandler handles Anthropic count_tokens requests.
type CountTokensHandler struct {
	Adapter anthropicadapter.CountTokensAdapter
	Models  ModelResolver
}

// Compile-time check to ensure CountTokensHandler implements http.Handler
var _ http.Handler = (*CountTokensHandler)(nil)

func (h *CountTokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropicadapter.TokenCountRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	requested := req.Model
	req.Model = h.Models.Resolve(requested)
	middleware.SetLogAttrs(ctx,
		slog.String("model", requested),
		slog.String("backend_model", req.Model),
	)

	response, err := h.Adapter.CountTokens(ctx, &req)
	if err != nil {
		writeProcessingError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, response, http.StatusOK)
}
