package anthropicadapter

// Anthropic error types.
const (
	ErrorTypeInvalidRequest  = "invalid_request_error"
	ErrorTypeAuthentication  = "authentication_error"
	ErrorTypePermission      = "permission_error"
	ErrorTypeNotFound        = "not_found_error"
	ErrorTypeRequestTooLarge = "request_too_large"
	ErrorTypeRateLimit       = "rate_limit_error"
	ErrorTypeAPI             = "api_error"
	ErrorTypeOverloaded      = "overloaded_error"
)

// Error is the detail of an Anthropic-formatted error.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the Anthropic error envelope: {"type": "error", "error": {...}}.
// Clients use it to tell request-shape problems apart from server failures.
type ErrorResponse struct {
	Type string `json:"type"`
	Err  Error  `json:"error"`
}

// NewErrorResponse creates an error envelope of the given error type.
func NewErrorResponse(errType, message string) *ErrorResponse {
	return &ErrorResponse{
		Type: "error",
		Err:  Error{Type: errType, Message: message},
	}
}

// Error implements the error interface, returning the underlying error message.
func (e *ErrorResponse) Error() string {
	return e.Err.Message
}

// DetailResponse is the body returned when a request fails before any response
// was emitted: {"detail": "..."}.
type DetailResponse struct {
	Detail string `json:"detail"`
}
