package tokensource

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// RefreshInterval is how long a key read from a store is reused.
const RefreshInterval = 5 * time.Minute

// readTimeout bounds a single store read; keyring backends may block on IPC.
const readTimeout = 10 * time.Second

// NewTokenSource returns a token source serving the store's key as a bearer token.
// The returned source is safe for concurrent use.
func NewTokenSource(store Store) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &storeTokenSource{store: store, now: time.Now})
}

type storeTokenSource struct {
	store Store
	now   func() time.Time
}

// Token implements oauth2.TokenSource.
func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	key, err := s.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read api key: %w", err)
	}

	return &oauth2.Token{
		AccessToken: key,
		TokenType:   "Bearer",
		Expiry:      s.now().Add(RefreshInterval),
	}, nil
}
