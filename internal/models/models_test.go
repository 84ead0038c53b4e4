package models

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	resolver := NewResolver(Config{
		Big:     "gpt-4o",
		Small:   "gpt-4o-mini",
		Aliases: map[string]string{"claude-3-haiku-20240307": "llama3.2", "fast": "qwen2"},
	})

	tests := map[string]string{
		"claude-sonnet-4-20250514":         "gpt-4o",
		"claude-3-5-haiku-20241022":        "gpt-4o-mini",
		"claude-opus-4-1-20250805":         "gpt-4o",
		"claude-3-haiku-20240307":          "llama3.2",
		"fast":                             "qwen2",
		"claude-haiku-5":                   "gpt-4o-mini",
		"Claude-Opus-Next":                 "gpt-4o",
		"anthropic/claude-3-opus-20240229": "gpt-4o",
		"gpt-4.1":                          "gpt-4.1",
		"openai/gpt-4.1":                   "openai/gpt-4.1",
	}

	for model, want := range tests {
		if got := resolver.Resolve(model); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestResolvePrefix(t *testing.T) {
	resolver := NewResolver(Config{Big: "gpt-4o", Small: "openai/gpt-4o-mini", Prefix: "openai/"})

	tests := map[string]string{
		"claude-3-5-sonnet-20241022": "openai/gpt-4o",
		"claude-3-5-haiku-20241022":  "openai/gpt-4o-mini",
		"llama3":                     "llama3",
	}

	for model, want := range tests {
		if got := resolver.Resolve(model); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestResolverCopiesAliases(t *testing.T) {
	aliases := map[string]string{"a": "b"}
	resolver := NewResolver(Config{Aliases: aliases})
	aliases["a"] = "changed"

	if got := resolver.Resolve("a"); got != "b" {
		t.Errorf("Resolve(a) = %q, want b", got)
	}
}

func TestList(t *testing.T) {
	resolver := NewResolver(Config{Big: "big", Small: "small", Aliases: map[string]string{"local": "llama3"}})

	got := resolver.List()

	if got.Object != "list" || got.HasMore {
		t.Errorf("unexpected list envelope %+v", got)
	}
	if len(got.Data) != len(knownModels)+1 {
		t.Fatalf("len(Data) = %d, want %d", len(got.Data), len(knownModels)+1)
	}
	if got.FirstID != "claude-haiku-4-5-20251001" || got.FirstID != got.Data[0].ID {
		t.Errorf("FirstID = %q, want newest model first", got.FirstID)
	}
	if got.LastID != "local" {
		t.Errorf("LastID = %q, want undated alias last", got.LastID)
	}

	want := Model{
		ID:          "claude-3-5-haiku-20241022",
		Type:        "model",
		DisplayName: "claude-3-5-haiku-20241022 (small)",
		CreatedAt:   time.Date(2024, 10, 22, 0, 0, 0, 0, time.UTC),
		Object:      "model",
		Created:     time.Date(2024, 10, 22, 0, 0, 0, 0, time.UTC).Unix(),
		OwnedBy:     "claudine-bridge",
	}
	for _, m := range got.Data {
		if m.ID == want.ID {
			if diff := cmp.Diff(want, m); diff != "" {
				t.Errorf("model mismatch (-want +got):\n%s", diff)
			}
			return
		}
	}
	t.Errorf("model %q not listed", want.ID)
}
