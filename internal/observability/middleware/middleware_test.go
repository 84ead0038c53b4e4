package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		want     string
		generate bool
	}{
		{name: "client id", header: "abc-123", want: "abc-123"},
		{name: "missing", generate: true},
		{name: "control characters", header: "abc\x01def", generate: true},
		{name: "too long", header: strings.Repeat("a", maxRequestIDLength+1), generate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestIDGeneration(RequestIDPropagation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r.Context())
			})))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if got != seen {
				t.Errorf("header %q differs from context %q", got, seen)
			}
			if rec.Header().Get("Request-Id") != got {
				t.Errorf("Request-Id = %q, want %q", rec.Header().Get("Request-Id"), got)
			}
			if tt.generate {
				if !strings.HasPrefix(got, "req_") {
					t.Errorf("generated id = %q, want req_ prefix", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("id = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTraceContextExtraction(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	var spanCtx trace.SpanContext
	handler := TraceContextExtraction(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanCtx = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := spanCtx.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %q", got)
	}
	if !spanCtx.IsRemote() {
		t.Error("extracted span context is not remote")
	}
}

func TestLoggingSkipsHealthProbes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health/readiness" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))

	for _, path := range []string{"/health/liveness", "/health/readiness", "/v1/models"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	logs := buf.String()
	if strings.Contains(logs, "/health/liveness") {
		t.Errorf("successful probe was logged:\n%s", logs)
	}
	for _, path := range []string{"/health/readiness", "/v1/models"} {
		if !strings.Contains(logs, path) {
			t.Errorf("request to %s was not logged:\n%s", path, logs)
		}
	}
}
