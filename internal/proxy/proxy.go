package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/models"
	"github.com/florianilch/claudine-bridge/internal/observability/middleware"
)

// DefaultMaxRequestBytes limits request bodies unless configured otherwise.
const DefaultMaxRequestBytes = 10 << 20

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// ModelResolver maps requested model names to backend models.
type ModelResolver interface {
	Resolve(model string) string
	List() models.ListResponse
}

// Proxy serves the Anthropic Messages API on top of the configured adapters.
type Proxy struct {
	handler http.Handler
	opts    options

	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

type options struct {
	maxRequestBytes   int64
	cors              bool
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
}

// Option configures a Proxy.
type Option func(*options)

// WithMaxRequestBytes limits the size of request bodies.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		o.maxRequestBytes = n
	}
}

// WithCORS enables permissive cross-origin access.
func WithCORS(enabled bool) Option {
	return func(o *options) {
		o.cors = enabled
	}
}

// WithReadHeaderTimeout bounds the time to read request headers.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readHeaderTimeout = d
	}
}

// WithWriteTimeout bounds the time to write a response. Zero leaves streams unbounded.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// New creates a Proxy routing Messages requests to messages and count requests to
// counter. Requested model names are resolved before translation.
func New(
	messages anthropicadapter.CreateMessageAdapter,
	counter anthropicadapter.CountTokensAdapter,
	resolver ModelResolver,
	health ReadinessChecker,
	opts ...Option,
) (*Proxy, error) {
	if messages == nil || counter == nil || resolver == nil || health == nil {
		return nil, errors.New("proxy requires adapters, a model resolver and a readiness checker")
	}

	o := options{
		maxRequestBytes:   DefaultMaxRequestBytes,
		cors:              true,
		readHeaderTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()
	r.Use(
		Recovery,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
	)
	if o.cors {
		r.Use(allowAllOrigins())
	}
	r.NotFound(notFoundHandler())
	r.MethodNotAllowed(methodNotAllowedHandler())

	r.Get("/", rootHandler())
	r.Get("/health/liveness", livenessHandler())
	r.Get("/health/readiness", readinessHandler(health))

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequestSizeLimit(o.maxRequestBytes))

		r.Get("/models", modelsHandler(resolver))
		r.Method(http.MethodPost, "/messages", &CreateMessageHandler{
			Adapter: messages,
			Models:  resolver,
		})
		r.Method(http.MethodPost, "/messages/count_tokens", &CountTokensHandler{
			Adapter: counter,
			Models:  resolver,
		})
	})

	return &Proxy{handler: r, opts: o}, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. Listen errors are returned
// directly; later serve errors are delivered on the returned channel, which is
// closed when serving ends.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: p.opts.readHeaderTimeout,
		WriteTimeout:      p.opts.writeTimeout,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	slog.InfoContext(ctx, "proxy listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests until ctx
// is done.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}
