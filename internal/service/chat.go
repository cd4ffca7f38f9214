package service

import (
	"context"
	"fmt"

	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/domain"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/repository"
)

// DefaultHistoryLimit caps the initial snapshot sent on a fresh stream.
const DefaultHistoryLimit = 50

var ErrMessageNotFound = repository.ErrMessageNotFound

type ChatMessageRepository interface {
	Create(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	FindByID(ctx context.Context, id uint) (domain.ChatMessage, error)
	FindByProject(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error)
}

type ChatService struct {
	repo         ChatMessageRepository
	historyLimit int
}

func NewChatService(repo ChatMessageRepository, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	return &ChatService{
		repo:         repo,
		historyLimit: historyLimit,
	}
}

// ListProjectMessages loads the history snapshot for one project:
// oldest first, capped at the history limit, denormalized for delivery.
func (s *ChatService) ListProjectMessages(ctx context.Context, projectID string) ([]domain.MessageView, error) {
	messages, err := s.repo.FindByProject(ctx, projectID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("s.repo.FindByProject -> %w", err)
	}

	views := make([]domain.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, domain.NewMessageView(msg))
	}

	return views, nil
}

// GetMessageView re-fetches one message with its sender resolved and
// formats it exactly like the history snapshot does.
func (s *ChatService) GetMessageView(ctx context.Context, id uint) (domain.MessageView, error) {
	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.MessageView{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	return domain.NewMessageView(msg), nil
}

// PostMessage persists a new message on behalf of sender. The stored
// display name is the explicit override when given, else the sender's
// name, else the sender's email.
func (s *ChatService) PostMessage(ctx context.Context, projectID string, sender domain.User, body, fileURL, username string) (domain.MessageView, error) {
	if username == "" {
		username = sender.Name
	}
	if username == "" {
		username = sender.Email
	}

	senderID := sender.ID
	created, err := s.repo.Create(ctx, domain.ChatMessage{
		ProjectID: projectID,
		UserID:    &senderID,
		Username:  username,
		Message:   body,
		File:      fileURL,
	})
	if err != nil {
		return domain.MessageView{}, fmt.Errorf("s.repo.Create -> %w", err)
	}

	// The stored record already carries the resolved name; live streams
	// re-resolve against the user record when they re-fetch it.
	return domain.NewMessageView(created), nil
}
