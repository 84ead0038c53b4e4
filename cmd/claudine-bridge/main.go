// Command claudine-bridge serves the Anthropic Messages API on top of an
// OpenAI-compatible chat completions backend.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/florianilch/claudine-bridge/cmd/claudine-bridge/commands"
)

// Set by the release build via -ldflags.
var (
	version = ""
	commit  = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The first signal starts a graceful shutdown; restoring default handling
	// lets a second one kill a shutdown stuck on open streams.
	go func() {
		<-ctx.Done()
		stop()
	}()

	v, c := buildInfo()
	if err := commands.Execute(ctx, os.Args, v, c); err != nil {
		slog.ErrorContext(ctx, "claudine-bridge failed", "error", err)
		os.Exit(1)
	}
}

// buildInfo prefers linker-set values and falls back to what the Go toolchain
// stamped into the binary, so `go install` builds report a usable version.
func buildInfo() (string, string) {
	v, c := version, commit
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, setting := range info.Settings {
			if c == "" && setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				c = setting.Value[:7]
			}
		}
	}
	if v == "" {
		v = "dev"
	}
	if c == "" {
		c = "none"
	}
	return v, c
}
