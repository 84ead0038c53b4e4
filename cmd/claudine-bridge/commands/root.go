package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/claudine-bridge/internal/app"
	"github.com/florianilch/claudine-bridge/internal/observability"
)

// defaultEnvFile is loaded when present and --env-file is not given.
const defaultEnvFile = ".env"

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return newRootCommand(version, commit).Run(ctx, args)
}

func newRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "claudine-bridge",
		Usage:   "Anthropic Messages API for OpenAI-compatible backends",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars(app.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load (default: " + defaultEnvFile + " if present)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(),
			modelsCommand(),
			authCommand(),
		},
	}
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Starts the proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "address to listen on (host:port)",
			},
			&cli.StringFlag{
				Name:  "backend-url",
				Usage: "base URL of the OpenAI-compatible API, e.g. http://localhost:11434/v1",
			},
		},
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "failed to flush logs", "error", err)
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting", "version", cmd.Root().Version)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:   "models",
		Usage:  "Lists Claude model names and the backend models they map to",
		Action: modelsAction,
	}
}

func modelsAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	resolver := cfg.Models.Resolver()

	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REQUESTED\tBACKEND")
	for _, model := range resolver.List().Data {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", model.ID, resolver.Resolve(model.ID))
	}
	return tw.Flush()
}

// flagOverrides maps command line flags to configuration keys.
var flagOverrides = map[string]string{
	"listen":      "server.listen",
	"backend-url": "backend.base_url",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

// loadConfig loads the configuration with the flags the user set as overrides.
func loadConfig(cmd *cli.Command) (*app.Config, error) {
	opts := app.LoadOptions{
		ConfigFile: cmd.String("config"),
		EnvFile:    cmd.String("env-file"),
		Environ:    os.Environ,
		Overrides:  map[string]any{},
	}

	if opts.EnvFile == "" {
		if _, err := os.Stat(defaultEnvFile); err == nil {
			opts.EnvFile = defaultEnvFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to check %s: %w", defaultEnvFile, err)
		}
	}

	for flag, key := range flagOverrides {
		if cmd.IsSet(flag) {
			opts.Overrides[key] = cmd.String(flag)
		}
	}

	return app.LoadConfig(opts)
}
