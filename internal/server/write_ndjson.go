package server

import (
	"encoding/json"
	"net/http"
	"sync"
)

// eventStream writes one JSON record per line to a streaming response and
// flushes after each record. Safe for concurrent use.
type eventStream struct {
	mu    sync.Mutex
	enc   *json.Encoder
	flush func()
}

func newEventStream(w http.ResponseWriter) *eventStream {
	w.Header().Set("Content-Type", "application/x-ndjson")
	s := &eventStream{enc: json.NewEncoder(w), flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		s.flush = f.Flush
	}
	return s
}

func (s *eventStream) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	s.flush()
	return nil
}

// fail sends a terminal error record.
func (s *eventStream) fail(err error) {
	_ = s.send(map[string]any{"type": "error", "error": err.Error()})
}
