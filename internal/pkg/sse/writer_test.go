package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()

	SetHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
}

func TestWriter_WriteEvent(t *testing.T) {
	rec := httptest.NewRecorder()

	w, err := NewWriter(rec)
	require.NoError(t, err)

	err = w.WriteEvent("new-message", map[string]string{"message": "hi"})
	require.NoError(t, err)

	assert.Equal(t, "event: new-message\ndata: {\"message\":\"hi\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

type noFlushWriter struct {
	http.ResponseWriter
}

func TestNewWriter_RequiresFlusher(t *testing.T) {
	_, err := NewWriter(noFlushWriter{httptest.NewRecorder()})

	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestWriter_WriteEventMarshalError(t *testing.T) {
	rec := httptest.NewRecorder()

	w, err := NewWriter(rec)
	require.NoError(t, err)

	err = w.WriteEvent("new-message", make(chan int))

	assert.Error(t, err)
	assert.Empty(t, rec.Body.String())
}
