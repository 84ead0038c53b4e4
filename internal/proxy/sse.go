package proxy

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
)

// SSEWriter writes server-sent events and flushes each one to the client.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter sends the event stream headers and lifts the server write deadline,
// since streams may outlive it.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &SSEWriter{w: w, rc: rc}
}

// WriteFrame writes one preformatted frame and flushes it.
func (s *SSEWriter) WriteFrame(frame anthropicadapter.Frame) error {
	if _, err := io.WriteString(s.w, string(frame)); err != nil {
		return err
	}
	// Writers without flush support deliver the stream when the handler returns.
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
