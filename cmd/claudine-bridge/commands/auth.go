package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/claudine-bridge/internal/app"
	"github.com/florianilch/claudine-bridge/internal/tokensource"
)

// authCommand returns the 'auth' subcommand for managing the backend API key.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the backend API key",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
			authStatusCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Save the backend API key to the configured storage",
		Action: authLoginAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove the backend API key from the configured storage",
		Action: authLogoutAction,
	}
}

// authStatusCommand returns the 'auth status' subcommand.
func authStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show whether a backend API key is available",
		Action: authStatusAction,
	}
}

// writableStore returns the configured store, rejecting read-only environment storage.
func writableStore(cmd *cli.Command, action string) (tokensource.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.Auth.Storage {
	case app.TokenStorageTypeEnv:
		return nil, fmt.Errorf("cannot %s with env storage (read-only). Configure file or keyring storage", action)
	case app.TokenStorageTypeNone:
		return nil, fmt.Errorf("cannot %s without token storage. Configure file or keyring storage", action)
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}
	return store, nil
}

func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableStore(cmd, "login")
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	key, err := readAPIKey(ctx, cmd.Root().Reader, out, "Enter backend API key: ")
	if err != nil {
		return err
	}
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	if err := store.Write(ctx, key); err != nil {
		return fmt.Errorf("failed to write API key: %w", err)
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "=== Login Successful ===")
	_, _ = fmt.Fprintln(out, "API key saved to configured storage")

	return nil
}

func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableStore(cmd, "logout")
	if err != nil {
		return err
	}

	// Clear key via empty string write to maintain storage abstraction
	if err := store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear API key: %w", err)
	}

	out := cmd.Root().Writer
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "=== Logout Successful ===")
	_, _ = fmt.Fprintln(out, "API key cleared from configured storage")

	return nil
}

func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.Root().Writer
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}
	if store == nil {
		_, _ = fmt.Fprintln(out, "Authentication disabled (storage: none)")
		return nil
	}

	key, err := store.Read(ctx)
	switch {
	case errors.Is(err, tokensource.ErrNotFound):
		_, _ = fmt.Fprintf(out, "No API key available (storage: %s)\n", cfg.Auth.Storage)
		return nil
	case err != nil:
		return fmt.Errorf("failed to read API key: %w", err)
	}

	_, _ = fmt.Fprintf(out, "API key %s available (storage: %s)\n", maskKey(key), cfg.Auth.Storage)
	return nil
}

// maskKey keeps only enough of a key to tell keys apart.
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// readAPIKey prompts for a key with hidden input on a terminal and reads a single
// line otherwise, so keys can be piped in.
func readAPIKey(ctx context.Context, in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		value, err := readSecureInput(ctx, f, out, prompt)
		return strings.TrimSpace(value), err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, in *os.File, out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	defer func() { _, _ = fmt.Fprintln(out) }()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(in.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
