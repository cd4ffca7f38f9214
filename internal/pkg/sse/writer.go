// Package sse writes named server-sent events with JSON payloads.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// SetHeaders marks the response as a server-push, uncached, persistent
// connection. Must run before the first write.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Writer emits SSE events on one response. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	return &Writer{
		w:       w,
		flusher: flusher,
	}, nil
}

// WriteEvent serializes payload to JSON and writes it as a named event,
// flushing immediately so the client sees it without buffering delay.
func (w *Writer) WriteEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("json.Marshal -> %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err = fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write event -> %w", err)
	}

	w.flusher.Flush()

	return nil
}
