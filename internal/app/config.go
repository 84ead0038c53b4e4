package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter/openaichat"
	"github.com/florianilch/claudine-bridge/internal/models"
	"github.com/florianilch/claudine-bridge/internal/observability"
	"github.com/florianilch/claudine-bridge/internal/tokensource"
)

// EnvPrefix prefixes every configuration environment variable. Nested keys are
// separated by a double underscore: CLAUDINE_BACKEND__BASE_URL sets backend.base_url.
const EnvPrefix = "CLAUDINE_"

// Config is the complete application configuration.
type Config struct {
	Server      ServerConfig         `koanf:"server"`
	Backend     BackendConfig        `koanf:"backend"`
	Auth        AuthConfig           `koanf:"auth"`
	Models      ModelsConfig         `koanf:"models"`
	Translation TranslationConfig    `koanf:"translation"`
	Log         observability.Config `koanf:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen            string        `koanf:"listen" validate:"required,hostname_port"`
	MaxRequestBytes   int64         `koanf:"max_request_bytes" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gte=0"`
	// WriteTimeout of 0 leaves streamed responses unbounded.
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORS            bool          `koanf:"cors"`
}

// BackendConfig configures the OpenAI-compatible backend.
type BackendConfig struct {
	BaseURL      string         `koanf:"base_url" validate:"required,http_url"`
	Timeout      time.Duration  `koanf:"timeout" validate:"gt=0"`
	MaxRetries   uint           `koanf:"max_retries" validate:"lte=10"`
	IncludeUsage bool           `koanf:"include_usage"`
	ExtraBody    map[string]any `koanf:"extra_body"`
}

// TokenStorageType selects where the backend API key is kept.
type TokenStorageType string

const (
	TokenStorageTypeNone    TokenStorageType = "none"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// AuthConfig configures backend authentication.
type AuthConfig struct {
	Storage     TokenStorageType `koanf:"storage" validate:"oneof=none env file keyring"`
	EnvVar      string           `koanf:"env_var" validate:"required_if=Storage env"`
	File        string           `koanf:"file" validate:"required_if=Storage file"`
	KeyringUser string           `koanf:"keyring_user" validate:"required_if=Storage keyring"`

	// lookupEnv resolves EnvVar against the environment the config was loaded from.
	lookupEnv func(string) (string, bool)
}

// NewTokenStore returns the configured key store, or nil for TokenStorageTypeNone.
func (c AuthConfig) NewTokenStore() (tokensource.Store, error) {
	switch c.Storage {
	case TokenStorageTypeNone:
		return nil, nil
	case TokenStorageTypeEnv:
		if c.lookupEnv != nil {
			return tokensource.NewEnvStoreWithLookup(c.EnvVar, c.lookupEnv), nil
		}
		return tokensource.NewEnvStore(c.EnvVar), nil
	case TokenStorageTypeFile:
		return tokensource.NewFileStore(c.File), nil
	case TokenStorageTypeKeyring:
		return tokensource.NewKeyringStore(tokensource.KeyringService, c.KeyringUser), nil
	default:
		return nil, fmt.Errorf("unsupported token storage %q", c.Storage)
	}
}

// ModelsConfig configures model name resolution.
type ModelsConfig struct {
	Big     string            `koanf:"big" validate:"required"`
	Small   string            `koanf:"small" validate:"required"`
	Prefix  string            `koanf:"prefix"`
	Aliases map[string]string `koanf:"aliases"`
}

// Resolver returns the model resolver for this configuration.
func (c ModelsConfig) Resolver() *models.Resolver {
	return models.NewResolver(models.Config{
		Big:     c.Big,
		Small:   c.Small,
		Prefix:  c.Prefix,
		Aliases: c.Aliases,
	})
}

// TranslationConfig configures protocol translation.
type TranslationConfig struct {
	ToolBlockModelPrefixes []string `koanf:"tool_block_model_prefixes"`
	ToolResultMode         string   `koanf:"tool_result_mode" validate:"oneof=text tool_messages"`
}

// TranslationOptions returns the translator options for this configuration.
func (c Config) TranslationOptions() openaichat.Options {
	return openaichat.Options{
		ToolBlockModelPrefixes: c.Translation.ToolBlockModelPrefixes,
		ToolResultMode:         openaichat.ToolResultMode(c.Translation.ToolResultMode),
		IncludeUsage:           c.Backend.IncludeUsage,
	}
}

// defaults are the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"server.listen":              "0.0.0.0:8083",
		"server.max_request_bytes":   int64(10 << 20),
		"server.read_header_timeout": 10 * time.Second,
		"server.write_timeout":       time.Duration(0),
		"server.shutdown_timeout":    5 * time.Second,
		"server.cors":                true,

		"backend.base_url":      "http://localhost:11434/v1",
		"backend.timeout":       10 * time.Minute,
		"backend.max_retries":   2,
		"backend.include_usage": true,

		"auth.storage":      string(TokenStorageTypeEnv),
		"auth.env_var":      "OPENAI_API_KEY",
		"auth.file":         defaultKeyFile(),
		"auth.keyring_user": "default",

		"models.big":   "gpt-4o",
		"models.small": "gpt-4o-mini",

		"translation.tool_block_model_prefixes": []string{"claude-"},
		"translation.tool_result_mode":          string(openaichat.ToolResultModeText),

		"log.level":    "info",
		"log.format":   "text",
		"log.exporter": observability.ExporterNone,
	}
}

func defaultKeyFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "api-key"
	}
	return filepath.Join(dir, "claudine-bridge", "api-key")
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"translation.tool_block_model_prefixes": true,
}

// LoadOptions selects the configuration sources beyond the built-in defaults.
type LoadOptions struct {
	// ConfigFile is an optional TOML file.
	ConfigFile string
	// EnvFile is an optional dotenv file. Its variables are applied below the
	// process environment.
	EnvFile string
	// Environ returns the process environment; os.Environ when nil.
	Environ func() []string
	// Overrides are flattened keys ("server.listen") with the highest precedence.
	Overrides map[string]any
}

// LoadConfig loads and validates the configuration. Layers, lowest precedence
// first: defaults, config file, env file, environment, overrides.
func LoadConfig(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", opts.ConfigFile, err)
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
		environ = withDotenv(dotenv, environ)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Auth.lookupEnv = lookupIn(environ)

	return &cfg, nil
}

// lookupIn returns an os.LookupEnv equivalent over environ. Later entries win.
func lookupIn(environ func() []string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		value, found := "", false
		for _, kv := range environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k == name {
				value, found = v, true
			}
		}
		return value, found
	}
}

// withDotenv puts dotenv entries ahead of the environment so real variables win.
func withDotenv(dotenv map[string]string, environ func() []string) func() []string {
	return func() []string {
		vars := make([]string, 0, len(dotenv))
		for k, v := range dotenv {
			vars = append(vars, k+"="+v)
		}
		return append(vars, environ()...)
	}
}

// transformEnv maps CLAUDINE_SERVER__LISTEN to server.listen.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if listKeys[key] {
		var items []string
		for item := range strings.SplitSeq(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}

	return key, value
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			msgs := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
