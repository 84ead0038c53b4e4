// Package models maps the Claude model names clients send to backend models.
//
// Clients such as Claude Code ask for concrete Claude models. The Resolver folds
// them onto two configured backend models: a big one for sonnet and opus requests,
// and a small one for haiku requests. Explicit aliases override that mapping and
// names that match nothing are forwarded verbatim.
package models

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Config configures a Resolver.
type Config struct {
	// Big serves sonnet and opus requests.
	Big string
	// Small serves haiku requests.
	Small string
	// Prefix is prepended to mapped model names that lack it, e.g. "openai/".
	Prefix string
	// Aliases map exact client model names to backend model names.
	Aliases map[string]string
}

// tier selects the configured backend model.
type tier int

const (
	tierBig tier = iota
	tierSmall
)

// knownModels are the Claude models clients commonly request.
var knownModels = map[string]tier{
	"claude-opus-4-1-20250805":   tierBig,
	"claude-opus-4-20250514":     tierBig,
	"claude-sonnet-4-5-20250929": tierBig,
	"claude-sonnet-4-20250514":   tierBig,
	"claude-haiku-4-5-20251001":  tierSmall,
	"claude-3-7-sonnet-20250219": tierBig,
	"claude-3-5-sonnet-20241022": tierBig,
	"claude-3-5-haiku-20241022":  tierSmall,
	"claude-3-opus-20240229":     tierBig,
	"claude-3-sonnet-20240229":   tierBig,
	"claude-3-haiku-20240307":    tierSmall,
	"claude-2.1":                 tierBig,
	"claude-2.0":                 tierBig,
	"claude-instant-1.2":         tierSmall,
}

// providerNamespaces are stripped before matching.
var providerNamespaces = []string{"openai/", "anthropic/", "gemini/", "ollama/"}

// Resolver maps requested model names to backend model names. It is immutable and
// safe for concurrent use.
type Resolver struct {
	cfg Config
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config) *Resolver {
	aliases := make(map[string]string, len(cfg.Aliases))
	for name, target := range cfg.Aliases {
		aliases[name] = target
	}
	cfg.Aliases = aliases
	return &Resolver{cfg: cfg}
}

// Resolve returns the backend model for a requested model.
//
// Lookup order: explicit aliases, known Claude models, then any name containing
// "haiku" (small) or "sonnet"/"opus" (big). Unmatched names pass through untouched.
func (r *Resolver) Resolve(model string) string {
	name := stripNamespace(model)

	if target, ok := r.cfg.Aliases[model]; ok {
		return r.decorate(target)
	}
	if target, ok := r.cfg.Aliases[name]; ok {
		return r.decorate(target)
	}

	if t, ok := knownModels[name]; ok {
		return r.decorate(r.target(t))
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "haiku"):
		return r.decorate(r.cfg.Small)
	case strings.Contains(lower, "sonnet"), strings.Contains(lower, "opus"):
		return r.decorate(r.cfg.Big)
	}

	return model
}

func (r *Resolver) target(t tier) string {
	if t == tierSmall {
		return r.cfg.Small
	}
	return r.cfg.Big
}

func (r *Resolver) decorate(model string) string {
	if r.cfg.Prefix == "" || strings.HasPrefix(model, r.cfg.Prefix) {
		return model
	}
	return r.cfg.Prefix + model
}

func stripNamespace(model string) string {
	for _, ns := range providerNamespaces {
		if name, ok := strings.CutPrefix(model, ns); ok {
			return name
		}
	}
	return model
}

// Model is one entry of the model list. It carries the fields of both the
// Anthropic and the OpenAI list formats so either client family can read it.
type Model struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`

	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ListResponse is the body of GET /v1/models.
type ListResponse struct {
	Data    []Model `json:"data"`
	HasMore bool    `json:"has_more"`
	FirstID string  `json:"first_id,omitempty"`
	LastID  string  `json:"last_id,omitempty"`
	Object  string  `json:"object"`
}

var dateSuffix = regexp.MustCompile(`-(\d{8})$`)

// List returns the model names the resolver knows, newest first.
func (r *Resolver) List() ListResponse {
	names := make(map[string]struct{}, len(knownModels)+len(r.cfg.Aliases))
	for name := range knownModels {
		names[name] = struct{}{}
	}
	for name := range r.cfg.Aliases {
		names[name] = struct{}{}
	}

	data := make([]Model, 0, len(names))
	for name := range names {
		created := releaseDate(name)
		data = append(data, Model{
			ID:          name,
			Type:        "model",
			DisplayName: name + " (" + r.Resolve(name) + ")",
			CreatedAt:   created,
			Object:      "model",
			Created:     created.Unix(),
			OwnedBy:     "claudine-bridge",
		})
	}
	slices.SortFunc(data, func(a, b Model) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	resp := ListResponse{Data: data, Object: "list"}
	if len(data) > 0 {
		resp.FirstID = data[0].ID
		resp.LastID = data[len(data)-1].ID
	}
	return resp
}

// releaseDate parses the YYYYMMDD suffix of a model name, or returns the Unix epoch.
func releaseDate(name string) time.Time {
	if m := dateSuffix.FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("20060102", m[1]); err == nil {
			return t
		}
	}
	return time.Unix(0, 0).UTC()
}
