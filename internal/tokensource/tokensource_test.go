package tokensource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type memoryStore struct {
	key   string
	err   error
	reads int
}

func (m *memoryStore) Read(context.Context) (string, error) {
	m.reads++
	return m.key, m.err
}

func (m *memoryStore) Write(_ context.Context, key string) error {
	m.key = key
	return nil
}

func TestStoreTokenSource(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryStore{key: "sk-1"}
	ts := &storeTokenSource{store: store, now: func() time.Time { return now }}

	token, err := ts.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token.AccessToken != "sk-1" || token.Type() != "Bearer" {
		t.Errorf("token = %+v, want bearer sk-1", token)
	}
	if !token.Expiry.Equal(now.Add(RefreshInterval)) {
		t.Errorf("expiry = %v, want %v", token.Expiry, now.Add(RefreshInterval))
	}

	store.err = ErrNotFound
	if _, err := ts.Token(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Token() error = %v, want ErrNotFound", err)
	}
}

func TestNewTokenSourceReusesKey(t *testing.T) {
	store := &memoryStore{key: "sk-reused"}
	ts := NewTokenSource(store)

	for range 3 {
		if _, err := ts.Token(); err != nil {
			t.Fatalf("Token() error = %v", err)
		}
	}
	if store.reads != 1 {
		t.Errorf("store reads = %d, want 1", store.reads)
	}
}

func TestTokenSourceWithTransport(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := &http.Client{Transport: &oauth2.Transport{Source: NewTokenSource(&memoryStore{key: "sk-http"})}}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotAuth != "Bearer sk-http" {
		t.Errorf("Authorization = %q, want Bearer sk-http", gotAuth)
	}
}
