package response

import "github.com/yizeng/gab/gin/gorm/chat-sse/internal/domain"

type SendMessageResponse struct {
	Success bool               `json:"success"`
	Message domain.MessageView `json:"message"`
}

// SendMessageError is the persistence-failure shape: a generic error
// plus the underlying detail.
type SendMessageError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// StreamError is the payload of an SSE "error" event.
type StreamError struct {
	Error string `json:"error"`
}
