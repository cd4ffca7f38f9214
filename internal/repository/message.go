package repository

import (
	"context"
	"fmt"

	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/changefeed"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/domain"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/repository/dao"
)

var ErrMessageNotFound = dao.ErrMessageNotFound

type MessageDAO interface {
	Insert(ctx context.Context, msg dao.ChatMessage) (dao.ChatMessage, error)
	FindByID(ctx context.Context, id uint) (dao.ChatMessage, error)
	FindByProject(ctx context.Context, projectID string, limit int) ([]dao.ChatMessage, error)
}

// MessageRepository persists chat messages and publishes every
// successful insert to the change feed. Readers of the feed stay fully
// decoupled from the write path.
type MessageRepository struct {
	dao  MessageDAO
	feed changefeed.Feed
}

func NewMessageRepository(dao MessageDAO, feed changefeed.Feed) *MessageRepository {
	return &MessageRepository{
		dao:  dao,
		feed: feed,
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	created, err := r.dao.Insert(ctx, dao.ChatMessage{
		ProjectID: msg.ProjectID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Message:   msg.Message,
		File:      msg.File,
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("r.dao.Insert -> %w", err)
	}

	inserted := messageDaoToDomain(created)
	r.feed.Publish(inserted)

	return inserted, nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id uint) (domain.ChatMessage, error) {
	found, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("r.dao.FindByID -> %w", err)
	}

	return messageDaoToDomain(found), nil
}

func (r *MessageRepository) FindByProject(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	found, err := r.dao.FindByProject(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindByProject -> %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(found))
	for _, msg := range found {
		messages = append(messages, messageDaoToDomain(msg))
	}

	return messages, nil
}

func messageDaoToDomain(m dao.ChatMessage) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Username:  m.Username,
		Message:   m.Message,
		File:      m.File,
		CreatedAt: m.CreatedAt,
	}

	if m.User != nil {
		sender := userDaoToDomain(*m.User)
		msg.Sender = &sender
	}

	return msg
}
