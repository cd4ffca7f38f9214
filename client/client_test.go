package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// newStreamServer serves the streaming endpoint: an initial-messages
// event with the given payload (skipped when empty), then every event
// pushed through the returned channel until the client disconnects.
func newStreamServer(t *testing.T, initial string) (*httptest.Server, chan [2]string) {
	t.Helper()

	live := make(chan [2]string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if initial != "" {
			writeSSE(w, flusher, "initial-messages", initial)
		}

		for {
			select {
			case evt := <-live:
				writeSSE(w, flusher, evt[0], evt[1])
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, live
}

func newTestChat(t *testing.T, baseURL string, identity Identity) *Chat {
	t.Helper()

	chat := New(Config{
		BaseURL:        baseURL,
		Token:          "test-token",
		ReconnectDelay: 25 * time.Millisecond,
	}, identity)
	t.Cleanup(chat.Close)

	return chat
}

func TestOpenPanel_SnapshotThenLive(t *testing.T) {
	authorOne, authorTwo := uint(1), uint(2)
	initial, err := json.Marshal([]Message{
		{ID: 1, ProjectID: "project-p", UserID: &authorOne, Username: "alice", Message: "first"},
		{ID: 2, ProjectID: "project-p", UserID: &authorTwo, Username: "bob", Message: "second"},
	})
	require.NoError(t, err)

	srv, live := newStreamServer(t, string(initial))
	chat := newTestChat(t, srv.URL, Identity{UserID: 1, Username: "alice"})

	chat.OpenPanel("project-p")

	require.Eventually(t, func() bool {
		return len(chat.Messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, chat.State())
	assert.Empty(t, chat.LastError())

	livePayload, err := json.Marshal(Message{ID: 3, ProjectID: "project-p", UserID: &authorTwo, Username: "bob", Message: "third"})
	require.NoError(t, err)
	live <- [2]string{"new-message", string(livePayload)}

	require.Eventually(t, func() bool {
		return len(chat.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	messages := chat.Messages()
	assert.Equal(t, uint(1), messages[0].ID)
	assert.Equal(t, uint(2), messages[1].ID)
	assert.Equal(t, uint(3), messages[2].ID)

	// Two of the three messages come from bob.
	assert.Equal(t, 2, chat.UnreadCount())
}

func TestOpenPanel_MalformedSnapshot(t *testing.T) {
	srv, _ := newStreamServer(t, `{not json`)
	chat := newTestChat(t, srv.URL, Identity{UserID: 1, Username: "alice"})

	chat.OpenPanel("project-p")

	require.Eventually(t, func() bool {
		return chat.LastError() == "Failed to load messages"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, chat.Messages())
}

func TestOpenPanel_MalformedLiveEventDropped(t *testing.T) {
	srv, live := newStreamServer(t, `[{"id":1,"projectId":"project-p","username":"alice"}]`)
	chat := newTestChat(t, srv.URL, Identity{UserID: 1, Username: "alice"})

	chat.OpenPanel("project-p")

	require.Eventually(t, func() bool {
		return len(chat.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	live <- [2]string{"new-message", `{broken`}
	live <- [2]string{"new-message", `{"id":3,"projectId":"project-p","username":"bob"}`}

	require.Eventually(t, func() bool {
		return len(chat.Messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	messages := chat.Messages()
	assert.Equal(t, uint(1), messages[0].ID)
	assert.Equal(t, uint(3), messages[1].ID)
}

func TestClosePanel_ClearsState(t *testing.T) {
	srv, _ := newStreamServer(t, `[{"id":1,"projectId":"project-p"}]`)
	chat := newTestChat(t, srv.URL, Identity{UserID: 1})

	chat.OpenPanel("project-p")

	require.Eventually(t, func() bool {
		return len(chat.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	chat.ClosePanel()

	assert.Equal(t, StateDisconnected, chat.State())
	assert.Empty(t, chat.Messages())
	assert.Zero(t, chat.UnreadCount())
}

// countingTransport fails the test if any request goes out, proving
// that local validation short-circuits before the network.
type countingTransport struct {
	calls int32
	base  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.base.RoundTrip(req)
}

func TestSend_EmptyMessage(t *testing.T) {
	transport := &countingTransport{base: http.DefaultTransport}
	chat := New(Config{
		BaseURL:    "http://localhost:0",
		HTTPClient: &http.Client{Transport: transport},
	}, Identity{UserID: 1, Username: "alice"})
	t.Cleanup(chat.Close)

	chat.SetCompose("   ")

	err := chat.Send(context.Background())
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, atomic.LoadInt32(&transport.calls))
}

func TestSend_NoIdentity(t *testing.T) {
	transport := &countingTransport{base: http.DefaultTransport}
	chat := New(Config{
		BaseURL:    "http://localhost:0",
		HTTPClient: &http.Client{Transport: transport},
	}, Identity{})
	t.Cleanup(chat.Close)

	chat.SetCompose("hello")

	err := chat.Send(context.Background())
	require.ErrorIs(t, err, ErrNoIdentity)
	assert.Equal(t, "User information not available", chat.LastError())
	assert.Zero(t, atomic.LoadInt32(&transport.calls))
}

func TestSend_Success(t *testing.T) {
	var (
		mu  sync.Mutex
		got sendRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/send", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		mu.Lock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"success":true,"message":{"id":1}}`)
	}))
	t.Cleanup(srv.Close)

	chat := New(Config{BaseURL: srv.URL, Token: "test-token"}, Identity{UserID: 1, Username: "alice"})
	t.Cleanup(chat.Close)

	chat.SelectProject("project-p")
	chat.SetCompose("hello there")

	require.NoError(t, chat.Send(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "project-p", got.ProjectID)
	assert.Equal(t, "hello there", got.Message)
	assert.Equal(t, "alice", got.Username)
}

func TestSend_EmojiWhenComposeEmpty(t *testing.T) {
	var (
		mu  sync.Mutex
		got sendRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"success":true,"message":{"id":1}}`)
	}))
	t.Cleanup(srv.Close)

	chat := New(Config{BaseURL: srv.URL}, Identity{UserID: 1, Username: "alice"})
	t.Cleanup(chat.Close)

	chat.SelectProject("project-p")
	chat.PickEmoji("🔥")

	require.NoError(t, chat.Send(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "🔥", got.Message)

	// Both inputs reset after a successful send.
	assert.ErrorIs(t, chat.Send(context.Background()), ErrEmptyMessage)
}

func TestSend_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"Failed to send message","details":"insert failed"}`)
	}))
	t.Cleanup(srv.Close)

	chat := New(Config{BaseURL: srv.URL}, Identity{UserID: 1, Username: "alice"})
	t.Cleanup(chat.Close)

	chat.SelectProject("project-p")
	chat.SetCompose("hello")

	err := chat.Send(context.Background())
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, "Failed to send message", chat.LastError())
}
