package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse indicates a reply body that is not a JSON object.
var ErrMalformedResponse = errors.New("backend: malformed response")

// APIError is an error reported by the upstream, either as a non-2xx status or
// as an in-band error event on a stream.
type APIError struct {
	StatusCode int    // HTTP status code, 0 for in-band stream errors
	Type       string // upstream error type, e.g. "invalid_request_error"
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error: %s", e.Message)
}

// ChunkDecodeError reports a single streamed data line that could not be decoded.
// It does not end the stream.
type ChunkDecodeError struct {
	Data string
	Err  error
}

func (e *ChunkDecodeError) Error() string {
	return fmt.Sprintf("decode stream chunk: %v", e.Err)
}

func (e *ChunkDecodeError) Unwrap() error {
	return e.Err
}

// isRetryableStatus reports whether a status code signals a transient upstream condition.
func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
