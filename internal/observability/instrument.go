package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies log records bridged to OpenTelemetry.
const instrumentationName = "github.com/florianilch/claudine-bridge"

// Log exporters.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Config configures logging.
type Config struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
	// Endpoint of the OTLP collector; exporter defaults apply when empty.
	Endpoint string `koanf:"endpoint"`
	Insecure bool   `koanf:"insecure"`
}

// Instrument installs the process-wide logger and the W3C trace context propagator.
// Records go to stdout and, when an exporter is configured, to an OpenTelemetry log
// pipeline. The returned function flushes and stops that pipeline.
func Instrument(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	stdoutHandler, err := newStdoutHandler(level, cfg.Format)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	shutdown = func(context.Context) error { return nil }
	handler := slog.Handler(stdoutHandler)

	if cfg.Exporter != "" && cfg.Exporter != ExporterNone {
		exporter, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up log exporter: %w", err)
		}
		provider := newLoggerProvider(exporter, level)
		shutdown = provider.Shutdown

		handler = slogmulti.Fanout(
			stdoutHandler,
			otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)),
		)
	}

	slog.SetDefault(slog.New(newCorrelationHandler(handler)))

	return shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newLoggerProvider builds a batching OpenTelemetry log pipeline that drops records
// below level before export.
func newLoggerProvider(exporter sdklog.Exporter, level slog.Level) *sdklog.LoggerProvider {
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severityOf(level))

	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
}

func newExporter(ctx context.Context, cfg Config) (sdklog.Exporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdoutlog.New()

	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		return otlploggrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		return otlploghttp.New(ctx, opts...)

	default:
		return nil, errors.New("unsupported log exporter " + cfg.Exporter)
	}
}

// severityOf maps a slog level onto the OpenTelemetry severity scale.
func severityOf(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
