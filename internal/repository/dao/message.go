package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrMessageNotFound = errors.New("message not found")

type ChatMessage struct {
	ID uint `gorm:"primaryKey"`

	ProjectID string `gorm:"index;not null"`
	UserID    *uint
	User      *User
	Username  string `gorm:"not null"`
	Message   string
	File      string

	CreatedAt time.Time `gorm:"not null;index"`
}

type MessageDAO struct {
	db *gorm.DB
}

func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{
		db: db,
	}
}

func (d *MessageDAO) Insert(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	result := d.db.WithContext(ctx).Omit("User").Create(&msg)
	if result.Error != nil {
		return ChatMessage{}, result.Error
	}

	return msg, nil
}

// FindByID loads a message with its sender record populated.
func (d *MessageDAO) FindByID(ctx context.Context, id uint) (ChatMessage, error) {
	var msg ChatMessage

	result := d.db.WithContext(ctx).Preload("User").First(&msg, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ChatMessage{}, ErrMessageNotFound
		}

		return ChatMessage{}, result.Error
	}

	return msg, nil
}

// FindByProject returns up to limit messages for one project, oldest
// first, with sender records populated.
func (d *MessageDAO) FindByProject(ctx context.Context, projectID string, limit int) ([]ChatMessage, error) {
	var messages []ChatMessage

	result := d.db.WithContext(ctx).
		Preload("User").
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}

	return messages, nil
}
