package domain

import "time"

// ClockFormat renders timestamps the way the chat UI displays them.
const ClockFormat = "3:04:05 PM"

// ChatMessage is a persisted chat message. Messages are append-only:
// once created they are never updated or deleted.
type ChatMessage struct {
	ID        uint      `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    *uint     `json:"user"`
	Username  string    `json:"username"`
	Message   string    `json:"message,omitempty"`
	File      string    `json:"file,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// Sender is the resolved user record when the sender reference
	// could be loaded. Not serialized.
	Sender *User `json:"-"`
}

// MessageView is the denormalized shape sent to chat clients, with the
// display name resolved and a human-readable time string attached.
type MessageView struct {
	ID        uint      `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    *uint     `json:"user"`
	Username  string    `json:"username"`
	Message   string    `json:"message,omitempty"`
	File      string    `json:"file,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Timestamp string    `json:"timestamp"`
}

// ResolveUsername picks the display name for a message: the sender's
// stored name, else the sender's email, else the name recorded on the
// message itself at write time.
func ResolveUsername(msg ChatMessage, sender *User) string {
	if sender != nil {
		if sender.Name != "" {
			return sender.Name
		}
		if sender.Email != "" {
			return sender.Email
		}
	}

	return msg.Username
}

// NewMessageView denormalizes a message for delivery. History and live
// events must format messages identically, so both go through here.
func NewMessageView(msg ChatMessage) MessageView {
	return MessageView{
		ID:        msg.ID,
		ProjectID: msg.ProjectID,
		UserID:    msg.UserID,
		Username:  ResolveUsername(msg, msg.Sender),
		Message:   msg.Message,
		File:      msg.File,
		CreatedAt: msg.CreatedAt,
		Timestamp: msg.CreatedAt.Format(ClockFormat),
	}
}
