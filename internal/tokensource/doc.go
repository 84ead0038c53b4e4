// Package tokensource provides backend API keys as oauth2 tokens.
//
// OpenAI-compatible backends authenticate with a static bearer key. Keys are kept
// in a Store and exposed through an oauth2.TokenSource, so the backend client can
// attach them with a plain oauth2.Transport and pick up rotated keys without a
// restart.
//
// # Stores
//
// Three stores are available:
//   - EnvStore reads the key from an environment variable and is read-only
//   - FileStore keeps the key in a file readable only by the owner
//   - KeyringStore keeps the key in the system keyring
//
// Writing an empty key clears it:
//
//	store := tokensource.NewKeyringStore(tokensource.KeyringService, "default")
//	err := store.Write(ctx, apiKey) // auth login
//	err = store.Write(ctx, "")      // auth logout
//
// # Token Sources
//
// Use NewTokenSource to serve a store's key to an HTTP client:
//
//	ts := tokensource.NewTokenSource(store)
//	client := &http.Client{Transport: &oauth2.Transport{Source: ts}}
//
// The key is re-read from the store after RefreshInterval.
package tokensource
