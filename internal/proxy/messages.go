package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/observability/middleware"
)

// CreateMessageHandler handles Anthropic Messages requests.
type CreateMessageHandler struct {
	Adapter anthropicadapter.CreateMessageAdapter
	Models  ModelResolver
}

// Compile-time check to ensure CreateMessageHandler implements http.Handler
var _ http.Handler = (*CreateMessageHandler)(nil)

// ServeHTTP implements http.Handler interface for streaming or non-streaming requests.
func (h *CreateMessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropicadapter.MessagesRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	requested := req.Model
	req.Model = h.Models.Resolve(requested)
	middleware.SetLogAttrs(ctx,
		slog.String("model", requested),
		slog.String("backend_model", req.Model),
		slog.Bool("stream", req.Stream),
	)
	slog.DebugContext(ctx, "resolved model", "requested", requested, "resolved", req.Model)

	if req.Stream {
		h.streamResponse(ctx, w, &req)
	} else {
		h.writeResponse(ctx, w, &req)
	}
}

// writeResponse handles non-streaming requests.
func (h *CreateMessageHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req *anthropicadapter.MessagesRequest,
) {
	if ctx.Err() != nil {
		return
	}
	response, err := h.Adapter.ProcessRequest(ctx, req)
	if err != nil {
		writeProcessingError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, response, http.StatusOK)
}

// streamResponse relays stream frames as they are produced.
func (h *CreateMessageHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req *anthropicadapter.MessagesRequest,
) {
	if ctx.Err() != nil {
		return
	}
	frames, err := h.Adapter.ProcessStreamingRequest(ctx, req)
	if err != nil {
		writeProcessingError(ctx, w, err)
		return
	}

	sse := NewSSEWriter(w)

	for frame := range frames {
		// Check for client disconnect before writing; breaking stops the backend stream.
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}

		if err := sse.WriteFrame(frame); err != nil {
			slog.ErrorContext(ctx, "failed to write stream frame", "error", err)
			return
		}
	}
}

// writeProcessingError answers a request that failed before any response was sent.
// Request problems keep their Anthropic error envelope; everything else is a 500
// with the error as detail.
func writeProcessingError(ctx context.Context, w http.ResponseWriter, err error) {
	var errResp *anthropicadapter.ErrorResponse
	if errors.As(err, &errResp) {
		slog.WarnContext(ctx, "rejected request", "error", err)
		writeJSONAnthropicError(ctx, w, errResp)
		return
	}

	slog.ErrorContext(ctx, "request failed", "error", err)
	writeDetail(ctx, w, err.Error(), http.StatusInternalServerError)
}
