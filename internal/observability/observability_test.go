package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/claudine-bridge/internal/observability/middleware"
)

func TestInstrument(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "text", cfg: Config{Level: "info", Format: "text"}},
		{name: "json with stdout exporter", cfg: Config{Level: "debug", Format: "json", Exporter: ExporterStdout}},
		{name: "invalid level", cfg: Config{Level: "loud"}, wantErr: "invalid log level"},
		{name: "invalid format", cfg: Config{Level: "info", Format: "xml"}, wantErr: "unsupported log format"},
		{name: "unknown exporter", cfg: Config{Level: "info", Exporter: "zipkin"}, wantErr: "unsupported log exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Instrument(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Instrument() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Instrument() error = %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("shutdown() error = %v", err)
			}
		})
	}
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	}))
	ctx = context.WithValue(ctx, middleware.RequestIDContextKey{}, "req_abc")

	logger.InfoContext(ctx, "in request")
	logger.With("component", "app").Info("outside request")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
	for _, want := range []string{"request_id=req_abc", "trace_id=4bf92f3577b34da6a3ce929d0e0e4736", "span_id=00f067aa0ba902b7"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("request record %q lacks %s", lines[0], want)
		}
	}
	if strings.Contains(lines[1], "trace_id") || strings.Contains(lines[1], "request_id") {
		t.Errorf("record outside request = %q", lines[1])
	}
	if !strings.Contains(lines[1], "component=app") {
		t.Errorf("record lost attrs: %q", lines[1])
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestStdoutAndExporterSinks(t *testing.T) {
	var debug, warn bytes.Buffer
	fanout := slogmulti.Fanout(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(fanout).With("component", "proxy").WithGroup("req")

	logger.Debug("verbose", "id", 1)
	logger.Warn("careful", "id", 2)

	if got := strings.Count(debug.String(), "\n"); got != 2 {
		t.Errorf("debug sink got %d records, want 2:\n%s", got, debug.String())
	}
	if strings.Contains(warn.String(), "verbose") || !strings.Contains(warn.String(), "careful") {
		t.Errorf("warn sink = %q", warn.String())
	}
	if !strings.Contains(warn.String(), "component=proxy") || !strings.Contains(warn.String(), "req.id=2") {
		t.Errorf("attrs or group lost: %q", warn.String())
	}

	if fanout.Enabled(context.Background(), slog.LevelDebug-1) {
		t.Error("fanout enabled below every sink's level")
	}

	failing := slogmulti.Fanout(failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)}, slog.NewTextHandler(&warn, nil))
	record := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	if err := failing.Handle(context.Background(), record); err == nil {
		t.Error("Handle() error = nil, want sink error")
	}
	if !strings.Contains(warn.String(), "boom") {
		t.Error("healthy sink skipped after another sink failed")
	}
}

func TestSeverityOf(t *testing.T) {
	tests := map[slog.Level]minsev.Severity{
		slog.LevelDebug:     minsev.SeverityDebug,
		slog.LevelInfo:      minsev.SeverityInfo,
		slog.LevelInfo + 2:  minsev.SeverityInfo,
		slog.LevelWarn:      minsev.SeverityWarn,
		slog.LevelError:     minsev.SeverityError,
		slog.LevelError + 4: minsev.SeverityError,
	}
	for level, want := range tests {
		if got := severityOf(level); got != want {
			t.Errorf("severityOf(%v) = %v, want %v", level, got, want)
		}
	}
}

// recordingExporter keeps exported log records in memory.
type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestLoggerProviderFiltersBySeverity(t *testing.T) {
	exporter := &recordingExporter{}
	provider := newLoggerProvider(exporter, slog.LevelWarn)
	logger := slog.New(otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))

	logger.Info("dropped")
	logger.Warn("kept", "model", "gpt-4o")

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	if len(exporter.records) != 1 {
		t.Fatalf("exported %d records, want 1", len(exporter.records))
	}
	record := exporter.records[0]
	if record.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want %v", record.Severity(), otellog.SeverityWarn)
	}
	if got := record.Body().AsString(); got != "kept" {
		t.Errorf("body = %q, want kept", got)
	}
}
