// Package client implements the chat-panel side of the live chat
// feature: it opens the streaming connection, keeps the in-memory
// message list in sync with the server, schedules reconnects after
// transport failures, and submits outgoing messages.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// DefaultReconnectDelay is how long the client waits after a transport
// failure before attempting a single reconnect.
const DefaultReconnectDelay = 3 * time.Second

var (
	ErrEmptyMessage = errors.New("nothing to send")
	ErrNoIdentity   = errors.New("user information not available")
	ErrSendFailed   = errors.New("failed to send message")
)

// Message mirrors the server's denormalized message view.
type Message struct {
	ID        uint      `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    *uint     `json:"user"`
	Username  string    `json:"username"`
	Message   string    `json:"message,omitempty"`
	File      string    `json:"file,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Timestamp string    `json:"timestamp"`
}

// Identity is the local user on whose behalf messages are sent.
type Identity struct {
	UserID   uint
	Username string
}

type Config struct {
	// BaseURL is the chat endpoint root, e.g. "http://localhost:4000/api/v1/chat".
	BaseURL string
	// Token is the bearer credential attached to every request.
	Token string

	HTTPClient     *http.Client
	ReconnectDelay time.Duration
}

// Chat is the live chat panel state. All methods are safe for
// concurrent use.
type Chat struct {
	conf     Config
	identity Identity
	retry    *reconnectTimer

	mu        sync.Mutex
	panelOpen bool
	projectID string
	state     State
	lastErr   string
	messages  []Message
	compose   string
	emoji     string

	// gen identifies the current connection; events and errors from a
	// superseded connection are ignored.
	gen    int
	cancel context.CancelFunc
}

func New(conf Config, identity Identity) *Chat {
	if conf.HTTPClient == nil {
		conf.HTTPClient = http.DefaultClient
	}
	if conf.ReconnectDelay <= 0 {
		conf.ReconnectDelay = DefaultReconnectDelay
	}

	c := &Chat{
		conf:     conf,
		identity: identity,
		state:    StateDisconnected,
	}
	c.retry = newReconnectTimer(conf.ReconnectDelay, c.mayReconnect, c.reconnect)

	return c
}

// OpenPanel opens the chat panel for a project and starts streaming.
// Any previous connection is closed first.
func (c *Chat) OpenPanel(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.panelOpen = true
	c.projectID = projectID
	if projectID == "" {
		c.teardownLocked()
		return
	}

	c.connectLocked()
}

// ClosePanel closes the panel, drops the connection and clears the
// local message list.
func (c *Chat) ClosePanel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.panelOpen = false
	c.teardownLocked()
}

// SelectProject switches the panel to another project. While the panel
// is open this reconnects immediately; deselecting tears down.
func (c *Chat) SelectProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.projectID = projectID
	if !c.panelOpen {
		return
	}

	if projectID == "" {
		c.teardownLocked()
		return
	}

	c.connectLocked()
}

// Close releases all resources. The Chat must not be reused.
func (c *Chat) Close() {
	c.ClosePanel()
}

func (c *Chat) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// LastError returns the current user-visible error message, if any.
func (c *Chat) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// Messages returns a copy of the rendered message list.
func (c *Chat) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Message(nil), c.messages...)
}

// UnreadCount is the number of rendered messages not authored by the
// local user. It is recomputed from the full list every call.
func (c *Chat) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, msg := range c.messages {
		if msg.UserID == nil || *msg.UserID != c.identity.UserID {
			count++
		}
	}

	return count
}

// SetCompose replaces the compose input.
func (c *Chat) SetCompose(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.compose = text
}

// PickEmoji records an emoji selection used when the text input is empty.
func (c *Chat) PickEmoji(emoji string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.emoji = emoji
}

type sendRequest struct {
	ProjectID string `json:"projectId"`
	Message   string `json:"message,omitempty"`
	FileURL   string `json:"fileUrl,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Send submits the compose input (or the emoji selection) to the send
// endpoint and clears it on success. The message is not inserted
// locally; it appears when the live stream echoes it back.
func (c *Chat) Send(ctx context.Context) error {
	c.mu.Lock()
	content := c.compose
	if strings.TrimSpace(content) == "" {
		content = c.emoji
	}
	if strings.TrimSpace(content) == "" {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	if c.identity.UserID == 0 {
		c.lastErr = "User information not available"
		c.mu.Unlock()
		return ErrNoIdentity
	}
	projectID := c.projectID
	username := c.identity.Username
	c.mu.Unlock()

	payload, err := json.Marshal(sendRequest{
		ProjectID: projectID,
		Message:   content,
		Username:  username,
	})
	if err != nil {
		return fmt.Errorf("json.Marshal -> %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.BaseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext -> %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.conf.Token)

	resp, err := c.conf.HTTPClient.Do(req)
	if err != nil {
		c.setError("Failed to send message")
		return fmt.Errorf("%w -> %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		c.setError("Failed to send message")
		return fmt.Errorf("%w -> unexpected status %v", ErrSendFailed, resp.StatusCode)
	}

	c.mu.Lock()
	c.compose = ""
	c.emoji = ""
	c.lastErr = ""
	c.mu.Unlock()

	return nil
}

func (c *Chat) setError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = msg
}

// connectLocked starts a fresh streaming connection, superseding any
// current one. Caller holds c.mu.
func (c *Chat) connectLocked() {
	c.closeConnLocked()

	c.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++

	go c.stream(ctx, c.gen, c.projectID)
}

// teardownLocked drops the connection, pending reconnects and local
// state. Caller holds c.mu.
func (c *Chat) teardownLocked() {
	c.closeConnLocked()
	c.retry.Cancel()
	c.messages = nil
	c.state = StateDisconnected
	c.lastErr = ""
}

func (c *Chat) closeConnLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	// Bump the generation so readers of the old connection go stale.
	c.gen++
}

// mayReconnect is the guard evaluated when the reconnect timer fires:
// the panel must still be open and a project still selected.
func (c *Chat) mayReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.panelOpen && c.projectID != ""
}

func (c *Chat) reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.panelOpen || c.projectID == "" {
		return
	}

	c.connectLocked()
}

// stream runs one streaming connection until it fails or is superseded.
func (c *Chat) stream(ctx context.Context, gen int, projectID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.conf.BaseURL+"/"+projectID, nil)
	if err != nil {
		c.transportError(gen, 0)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+c.conf.Token)

	resp, err := c.conf.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.transportError(gen, 0)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.transportError(gen, resp.StatusCode)
		return
	}

	c.markConnected(gen)

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				c.transportError(gen, 0)
			}
			return
		}

		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			c.handleEvent(gen, event, data)
			event, data = "", ""
		}
	}
}

func (c *Chat) markConnected(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	c.state = StateConnected
	c.lastErr = ""
}

// handleEvent applies one server event to the local list. The initial
// snapshot replaces the list wholesale, which also makes reconnects
// safe against duplicate appends.
func (c *Chat) handleEvent(gen int, event, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	switch event {
	case "initial-messages":
		var messages []Message
		if err := json.Unmarshal([]byte(data), &messages); err != nil {
			zap.L().Error("failed to parse initial messages", zap.Error(err))
			c.lastErr = "Failed to load messages"
			return
		}

		c.messages = messages
		c.state = StateConnected
		c.lastErr = ""

	case "new-message":
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			// Drop the event; the rendered list stays as it was.
			zap.L().Warn("failed to parse new message", zap.Error(err))
			return
		}

		c.messages = append(c.messages, msg)
	}
}

// transportError marks the connection failed and arms a single delayed
// reconnect. A 401 means the credential expired; reconnecting with the
// same token will not help, so the message tells the user instead.
func (c *Chat) transportError(gen int, statusCode int) {
	c.mu.Lock()

	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	c.state = StateError
	if statusCode == http.StatusUnauthorized {
		c.lastErr = "Session expired. Please refresh the page."
	} else {
		c.lastErr = "Connection error. Trying to reconnect..."
	}
	c.mu.Unlock()

	c.retry.Schedule()
}
