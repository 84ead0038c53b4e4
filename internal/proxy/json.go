package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
)

// validate checks decoded request bodies. Field names in messages are JSON names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest decodes and validates a JSON request body into req. On failure it
// writes the error response and returns false.
func decodeRequest[T any](ctx context.Context, w http.ResponseWriter, r *http.Request, req *T) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONAnthropicError(ctx, w, anthropicadapter.NewErrorResponse(
				anthropicadapter.ErrorTypeRequestTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
			))
			return false
		}
		slog.WarnContext(ctx, "failed to decode request", "error", err)
		writeJSONAnthropicError(ctx, w, anthropicadapter.NewErrorResponse(
			anthropicadapter.ErrorTypeInvalidRequest,
			"invalid request body: "+err.Error(),
		))
		return false
	}

	if err := validate.StructCtx(ctx, req); err != nil {
		slog.WarnContext(ctx, "invalid request", "error", err)
		writeJSONAnthropicError(ctx, w, anthropicadapter.NewErrorResponse(
			anthropicadapter.ErrorTypeInvalidRequest,
			validationMessage(err),
		))
		return false
	}

	return true
}

// validationMessage renders validation errors as "field: constraint" pairs.
func validationMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		// Drop the root struct name: "MessagesRequest.messages[0].role" → "messages[0].role"
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		constraint := fe.Tag()
		if fe.Param() != "" {
			constraint += "=" + fe.Param()
		}
		msgs = append(msgs, field+": failed on "+constraint)
	}
	return strings.Join(msgs, "; ")
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONAnthropicError writes an Anthropic error envelope with the HTTP status
// code the Anthropic API uses for its error type.
func writeJSONAnthropicError(ctx context.Context, w http.ResponseWriter, errResp *anthropicadapter.ErrorResponse) {
	var status int
	switch errResp.Err.Type {
	case anthropicadapter.ErrorTypeInvalidRequest:
		status = http.StatusBadRequest
	case anthropicadapter.ErrorTypeAuthentication:
		status = http.StatusUnauthorized
	case anthropicadapter.ErrorTypePermission:
		status = http.StatusForbidden
	case anthropicadapter.ErrorTypeNotFound:
		status = http.StatusNotFound
	case anthropicadapter.ErrorTypeRequestTooLarge:
		status = http.StatusRequestEntityTooLarge
	case anthropicadapter.ErrorTypeRateLimit:
		status = http.StatusTooManyRequests
	case anthropicadapter.ErrorTypeOverloaded:
		status = 529
	default:
		status = http.StatusInternalServerError
	}

	writeJSON(ctx, w, errResp, status)
}

// writeDetail writes {"detail": msg}.
func writeDetail(ctx context.Context, w http.ResponseWriter, msg string, status int) {
	writeJSON(ctx, w, anthropicadapter.DetailResponse{Detail: msg}, status)
}

func notFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONAnthropicError(r.Context(), w, anthropicadapter.NewErrorResponse(
			anthropicadapter.ErrorTypeNotFound,
			"no route for "+r.Method+" "+r.URL.Path,
		))
	}
}

func methodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, anthropicadapter.NewErrorResponse(
			anthropicadapter.ErrorTypeInvalidRequest,
			"method "+r.Method+" not allowed for "+r.URL.Path,
		), http.StatusMethodNotAllowed)
	}
}
