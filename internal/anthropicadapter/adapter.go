package anthropicadapter

import (
	"context"
	"iter"
)

// Adapter defines the contract for serving Anthropic Messages requests from a
// non-Anthropic provider.
//
// Type parameters allow the interface to express transformation contracts for different
// request/response shapes while maintaining compile-time type safety.
//
// Type parameters:
//   - TRequest:  Client-specific request structure
//   - TResponse: Client-specific response structure
//   - TFrame:    Client-specific streaming frame
type Adapter[TRequest, TResponse, TFrame any] interface {
	// ProcessRequest transforms the client request, calls the provider API, and returns
	// the transformed response. Implementations should remain stateless.
	ProcessRequest(ctx context.Context, clientReq *TRequest) (*TResponse, error)

	// ProcessStreamingRequest transforms the client request, calls the provider streaming API,
	// and returns an iterator of client frames. An error is returned only when the provider
	// call fails before any frame could be produced; once iteration starts, failures are
	// reported in-band and the sequence always ends with a terminal frame.
	ProcessStreamingRequest(ctx context.Context, clientReq *TRequest) (iter.Seq[TFrame], error)
}

// TokenCounter estimates the input token count of a request without generating.
type TokenCounter[TRequest, TResponse any] interface {
	CountTokens(ctx context.Context, clientReq *TRequest) (*TResponse, error)
}

// CreateMessageAdapter is the concrete adapter interface for the Messages operation.
type CreateMessageAdapter = Adapter[MessagesRequest, MessagesResponse, Frame]

// CountTokensAdapter is the concrete adapter interface for the count_tokens operation.
type CountTokensAdapter = TokenCounter[TokenCountRequest, TokenCountResponse]
