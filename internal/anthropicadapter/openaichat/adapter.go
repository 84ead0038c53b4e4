package openaichat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/backend"
)

// ChatCompleter calls a chat completion backend.
type ChatCompleter interface {
	Complete(ctx context.Context, req *backend.ChatCompletionRequest) (*backend.ChatCompletionResponse, error)
	Stream(ctx context.Context, req *backend.ChatCompletionRequest) (iter.Seq2[*backend.ChatCompletionChunk, error], error)
}

// CreateMessageAdapter serves Anthropic Messages requests from a chat completion backend.
type CreateMessageAdapter struct {
	client ChatCompleter
	opts   Options
}

// Compile-time check that CreateMessageAdapter implements anthropicadapter.CreateMessageAdapter
var _ anthropicadapter.CreateMessageAdapter = (*CreateMessageAdapter)(nil)

// NewCreateMessageAdapter creates an adapter that translates with opts.
func NewCreateMessageAdapter(client ChatCompleter, opts Options) *CreateMessageAdapter {
	return &CreateMessageAdapter{client: client, opts: opts}
}

// ProcessRequest handles a non-streaming request. Request translation problems are
// returned as *anthropicadapter.ErrorResponse; backend failures are returned wrapped.
func (a *CreateMessageAdapter) ProcessRequest(
	ctx context.Context,
	req *anthropicadapter.MessagesRequest,
) (*anthropicadapter.MessagesResponse, error) {
	chatReq, err := toChatCompletionRequest(req, a.opts)
	if err != nil {
		return nil, anthropicadapter.NewErrorResponse(anthropicadapter.ErrorTypeInvalidRequest, err.Error())
	}
	chatReq.Stream = false

	resp, err := a.client.Complete(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("backend completion: %w", err)
	}

	return toMessagesResponse(ctx, resp, req.Model, a.opts), nil
}

// ProcessStreamingRequest handles a streaming request. Errors are returned only when
// the backend call fails before streaming starts.
func (a *CreateMessageAdapter) ProcessStreamingRequest(
	ctx context.Context,
	req *anthropicadapter.MessagesRequest,
) (iter.Seq[anthropicadapter.Frame], error) {
	chatReq, err := toChatCompletionRequest(req, a.opts)
	if err != nil {
		return nil, anthropicadapter.NewErrorResponse(anthropicadapter.ErrorTypeInvalidRequest, err.Error())
	}
	chatReq.Stream = true

	chunks, err := a.client.Stream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("backend stream: %w", err)
	}

	return reconstructStream(ctx, chunks, req.Model, a.opts), nil
}

// FallbackTokenCount is reported when tokens cannot be counted.
const FallbackTokenCount = 1000

// TokenCounter estimates the prompt tokens of a chat completion request.
type TokenCounter interface {
	CountTokens(ctx context.Context, req *backend.ChatCompletionRequest) (int, error)
}

// CountTokensAdapter answers count_tokens requests by counting the translated
// chat completion request locally.
type CountTokensAdapter struct {
	counter TokenCounter
	opts    Options
}

// Compile-time check that CountTokensAdapter implements anthropicadapter.CountTokensAdapter
var _ anthropicadapter.CountTokensAdapter = (*CountTokensAdapter)(nil)

// NewCountTokensAdapter creates a count_tokens adapter.
func NewCountTokensAdapter(counter TokenCounter, opts Options) *CountTokensAdapter {
	return &CountTokensAdapter{counter: counter, opts: opts}
}

// CountTokens returns the estimated input tokens. When the counter fails, the
// fixed FallbackTokenCount is returned instead of an error.
func (a *CountTokensAdapter) CountTokens(
	ctx context.Context,
	req *anthropicadapter.TokenCountRequest,
) (*anthropicadapter.TokenCountResponse, error) {
	chatReq, err := toChatCompletionRequest(req.MessagesRequest(), a.opts)
	if err != nil {
		return nil, anthropicadapter.NewErrorResponse(anthropicadapter.ErrorTypeInvalidRequest, err.Error())
	}

	count, err := a.counter.CountTokens(ctx, chatReq)
	if err != nil {
		slog.WarnContext(ctx, "token counting failed, using fallback estimate",
			"error", err,
			"fallback", FallbackTokenCount,
		)
		count = FallbackTokenCount
	}

	return &anthropicadapter.TokenCountResponse{InputTokens: count}, nil
}
