package response

import "github.com/yizeng/gab/gin/gorm/chat-sse/internal/domain"

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}
