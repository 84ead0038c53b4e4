package proxy

import "net/http"

type probeStatus struct {
	Status string `json:"status"`
}

// rootHandler greets clients probing the base URL.
func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, map[string]string{
			"message": "Anthropic Proxy for OpenAI-compatible backends",
		}, http.StatusOK)
	}
}

// livenessHandler answers as long as the process can serve HTTP at all.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(r.Context(), w, probeStatus{Status: "alive"}, http.StatusOK)
	}
}

// readinessHandler reports 503 until the checker says new requests are welcome,
// and again once shutdown has begun.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if !checker.IsReady() {
			writeJSON(r.Context(), w, probeStatus{Status: "unavailable"}, http.StatusServiceUnavailable)
			return
		}
		writeJSON(r.Context(), w, probeStatus{Status: "ready"}, http.StatusOK)
	}
}
