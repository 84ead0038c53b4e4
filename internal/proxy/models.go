package proxy

import "net/http"

// modelsHandler lists the model names clients can request.
//
// Chat completion backends list their own models, which Anthropic clients cannot
// select. The list instead holds the Claude names and aliases the resolver maps,
// in a merged format readable by both Anthropic and OpenAI clients.
func modelsHandler(resolver ModelResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, resolver.List(), http.StatusOK)
	}
}
