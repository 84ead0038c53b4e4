package tokensource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

var (
	// ErrNotFound is returned when a store holds no key.
	ErrNotFound = errors.New("api key not found")

	// ErrReadOnly is returned when writing to a store that cannot be written.
	ErrReadOnly = errors.New("token store is read-only")
)

// Store persists a single API key.
type Store interface {
	// Read returns the stored key or ErrNotFound.
	Read(ctx context.Context) (string, error)
	// Write replaces the stored key. An empty key clears it.
	Write(ctx context.Context, key string) error
}

// EnvStore reads the key from an environment variable.
type EnvStore struct {
	name   string
	lookup func(string) (string, bool)
}

// NewEnvStore creates a store backed by the environment variable name.
func NewEnvStore(name string) *EnvStore {
	return NewEnvStoreWithLookup(name, os.LookupEnv)
}

// NewEnvStoreWithLookup creates a store resolving name with lookup instead of the
// process environment.
func NewEnvStoreWithLookup(name string, lookup func(string) (string, bool)) *EnvStore {
	return &EnvStore{name: name, lookup: lookup}
}

func (s *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, ok := s.lookup(s.name)
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, s.name)
	}
	return key, nil
}

func (s *EnvStore) Write(context.Context, string) error {
	return ErrReadOnly
}

// FileStore keeps the key in a file with owner-only permissions.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s does not exist", ErrNotFound, s.path)
	}
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, s.path)
	}
	return key, nil
}

// Write stores key atomically. An empty key removes the file.
func (s *FileStore) Write(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove key file: %w", err)
		}
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".key-*")
	if err != nil {
		return fmt.Errorf("create temporary key file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("restrict key file permissions: %w", err)
	}
	if _, err := tmp.WriteString(key + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close key file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace key file: %w", err)
	}
	return nil
}

// KeyringService is the keyring service name keys are stored under.
const KeyringService = "claudine-bridge"

// KeyringStore keeps the key in the system keyring.
type KeyringStore struct {
	service string
	user    string
}

// NewKeyringStore creates a store for the keyring entry service/user.
func NewKeyringStore(service, user string) *KeyringStore {
	return &KeyringStore{service: service, user: user}
}

func (s *KeyringStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: no keyring entry for %s/%s", ErrNotFound, s.service, s.user)
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return key, nil
}

// Write stores key in the keyring. An empty key deletes the entry.
func (s *KeyringStore) Write(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		if err := keyring.Delete(s.service, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete keyring entry: %w", err)
		}
		return nil
	}
	if err := keyring.Set(s.service, s.user, key); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}
