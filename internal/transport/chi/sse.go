package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/oriane-labs/wayfind/internal/domain/stream"
)

// sseWriter frames run events as server-sent events and flushes each one
// so clients see tokens as they are produced.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return &sseWriter{w: w, f: f}, nil
}

// Send writes one event frame. Write errors mean the client is gone; the
// caller should stop streaming.
func (s *sseWriter) Send(ev stream.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.f.Flush()
	return nil
}
