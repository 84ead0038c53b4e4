package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"
)

const (
	defaultTimeout    = 10 * time.Minute
	defaultMaxRetries = 2

	// maxErrorBodyBytes bounds how much of a failed reply is read for diagnostics.
	maxErrorBodyBytes = 64 << 10
)

// Client calls an OpenAI-compatible chat completions endpoint.
// It is safe for concurrent use.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	transport   http.RoundTripper
	tokenSource oauth2.TokenSource
	timeout     time.Duration
	maxRetries  uint
	extraBody   map[string]any
	newBackOff  func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the base transport. Authentication added by WithTokenSource
// wraps this transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithTokenSource authenticates every request with a bearer token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

// WithTimeout bounds a non-streaming call and the wait for response headers of a
// streaming call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n uint) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithExtraBody merges fields into every request body. Keys are sjson paths, so
// "options.num_ctx" sets a nested field.
func WithExtraBody(fields map[string]any) Option {
	return func(c *Client) {
		c.extraBody = fields
	}
}

// WithBackOff replaces the retry delay policy. The factory is called once per request.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = newBackOff
	}
}

// New creates a client for the chat completions endpoint below baseURL
// (e.g. "http://localhost:11434/v1").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}

	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/chat/completions",
		transport:  http.DefaultTransport,
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	transport := c.transport
	if c.tokenSource != nil {
		transport = &oauth2.Transport{
			Source: c.tokenSource,
			Base:   transport,
		}
	}
	c.httpClient = &http.Client{
		Transport: transport,
		// Client.Timeout = 0 allows long-running SSE streams; bounds are applied per call
	}

	return c, nil
}

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	outbound := *req
	outbound.Stream = false
	outbound.StreamOptions = nil

	resp, err := c.send(ctx, &outbound)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	decoded, err := DecodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

// Stream performs a streaming chat completion. The returned error covers
// everything up to the arrival of response headers; later failures are yielded
// by the iterator. Callers must either range over the iterator or cancel ctx to
// release the connection.
func (c *Client) Stream(ctx context.Context, req *ChatCompletionRequest) (iter.Seq2[*ChatCompletionChunk, error], error) {
	ctx, cancel := context.WithCancel(ctx)

	var headerTimer *time.Timer
	if c.timeout > 0 {
		headerTimer = time.AfterFunc(c.timeout, cancel)
	}

	outbound := *req
	outbound.Stream = true

	resp, err := c.send(ctx, &outbound)
	if headerTimer != nil {
		headerTimer.Stop()
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return func(yield func(*ChatCompletionChunk, error) bool) {
		defer cancel()
		defer func() { _ = resp.Body.Close() }()

		for chunk, err := range readChunks(resp.Body) {
			if !yield(chunk, err) {
				return
			}
		}
	}, nil
}

// send marshals the request and posts it, retrying transient failures that occur
// before any response body is consumed.
func (c *Client) send(ctx context.Context, req *ChatCompletionRequest) (*http.Response, error) {
	body, err := c.encodeRequest(req)
	if err != nil {
		return nil, err
	}

	operation := func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if req.Stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		} else {
			httpReq.Header.Set("Accept", "application/json")
		}
		// Continue the caller's trace upstream when one was extracted.
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, fmt.Errorf("send request: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := readAPIError(resp)
		if !apiErr.Retryable {
			return nil, backoff.Permanent(apiErr)
		}
		if seconds := retryAfterSeconds(resp.Header); seconds > 0 {
			return nil, fmt.Errorf("%w: %w", apiErr, backoff.RetryAfter(seconds))
		}
		return nil, apiErr
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "backend request failed, retrying", "error", err, "retry_in", next)
		}),
	)
}

// encodeRequest marshals the request and applies configured extra body fields.
func (c *Client) encodeRequest(req *ChatCompletionRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	for path, value := range c.extraBody {
		body, err = sjson.SetBytes(body, path, value)
		if err != nil {
			return nil, fmt.Errorf("apply extra body field %q: %w", path, err)
		}
	}

	return body, nil
}

// readAPIError consumes and closes a non-2xx reply. The OpenAI error envelope
// {"error": {"message", "type"}} is used when present, the raw body otherwise.
func readAPIError(resp *http.Response) *APIError {
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Retryable:  isRetryableStatus(resp.StatusCode),
	}

	if _, err := DecodeResponse(body); err != nil {
		var inBand *APIError
		if errors.As(err, &inBand) {
			apiErr.Type = inBand.Type
			apiErr.Message = inBand.Message
			return apiErr
		}
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// retryAfterSeconds parses a Retry-After header given in seconds.
func retryAfterSeconds(header http.Header) int {
	seconds, err := strconv.Atoi(header.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
