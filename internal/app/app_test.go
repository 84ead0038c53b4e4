package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/florianilch/claudine-bridge/internal/tokensource"
)

func testConfig(t *testing.T, overrides map[string]any) *Config {
	t.Helper()

	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg, err := LoadConfig(LoadOptions{Environ: environ(), Overrides: overrides})
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	return cfg
}

func TestNewTokenSource(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		ts, err := newTokenSource(ctx, AuthConfig{Storage: TokenStorageTypeNone})
		if err != nil || ts != nil {
			t.Errorf("newTokenSource() = %v, %v; want nil, nil", ts, err)
		}
	})

	t.Run("missing env key runs unauthenticated", func(t *testing.T) {
		cfg := testConfig(t, nil)
		ts, err := newTokenSource(ctx, cfg.Auth)
		if err != nil || ts != nil {
			t.Errorf("newTokenSource() = %v, %v; want nil, nil", ts, err)
		}
	})

	t.Run("missing stored key fails", func(t *testing.T) {
		cfg := AuthConfig{Storage: TokenStorageTypeFile, File: filepath.Join(t.TempDir(), "api-key")}
		_, err := newTokenSource(ctx, cfg)
		if err == nil || !strings.Contains(err.Error(), "auth login") {
			t.Errorf("newTokenSource() error = %v, want hint to log in", err)
		}
	})

	t.Run("stored key", func(t *testing.T) {
		cfg := AuthConfig{Storage: TokenStorageTypeFile, File: filepath.Join(t.TempDir(), "api-key")}
		store, _ := cfg.NewTokenStore()
		if err := store.Write(ctx, "sk-stored"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		ts, err := newTokenSource(ctx, cfg)
		if err != nil {
			t.Fatalf("newTokenSource() error = %v", err)
		}
		token, err := ts.Token()
		if err != nil || token.AccessToken != "sk-stored" {
			t.Errorf("Token() = %v, %v; want sk-stored", token, err)
		}
	})

	t.Run("env key from dotenv", func(t *testing.T) {
		envFile := writeFile(t, ".env", "OPENAI_API_KEY=sk-env\n")
		cfg, err := LoadConfig(LoadOptions{Environ: environ(), EnvFile: envFile})
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		ts, err := newTokenSource(ctx, cfg.Auth)
		if err != nil || ts == nil {
			t.Fatalf("newTokenSource() = %v, %v", ts, err)
		}
		if token, err := ts.Token(); err != nil || token.AccessToken != "sk-env" {
			t.Errorf("Token() = %v, %v; want sk-env", token, err)
		}
	})

	t.Run("unreadable store", func(t *testing.T) {
		dir := t.TempDir()
		// A directory where the key file should be cannot be read as a file.
		_, err := newTokenSource(ctx, AuthConfig{Storage: TokenStorageTypeFile, File: dir})
		if err == nil || errors.Is(err, tokensource.ErrNotFound) {
			t.Errorf("newTokenSource() error = %v, want read failure", err)
		}
	})
}

func TestAppLifecycle(t *testing.T) {
	cfg := testConfig(t, map[string]any{"auth.storage": "none"})
	// Port 0 fails hostname_port validation, so it is set after loading.
	cfg.Server.Listen = "127.0.0.1:0"

	application, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if application.Health().IsReady() {
		t.Fatal("app is ready before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !application.Health().IsReady() {
		if time.Now().After(deadline) {
			t.Fatal("app did not become ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}

	if got := application.Health().Phase(); got != PhaseDraining {
		t.Errorf("phase after shutdown = %v, want %v", got, PhaseDraining)
	}
}

func TestAppStartFailsOnBusyAddress(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = busy.Close() }()

	cfg := testConfig(t, map[string]any{"auth.storage": "none"})
	cfg.Server.Listen = busy.Addr().String()

	application, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := application.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "proxy startup failed") {
		t.Errorf("Start() error = %v, want startup failure", err)
	}
}
