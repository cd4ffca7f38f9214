package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/domain"
)

type fakeChatRepo struct {
	nextID      uint
	created     []domain.ChatMessage
	createErr   error
	byID        map[uint]domain.ChatMessage
	byProject   map[string][]domain.ChatMessage
	gotLimit    int
	findListErr error
}

func (f *fakeChatRepo) Create(_ context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if f.createErr != nil {
		return domain.ChatMessage{}, f.createErr
	}

	f.nextID++
	msg.ID = f.nextID
	msg.CreatedAt = time.Now()
	f.created = append(f.created, msg)

	return msg, nil
}

func (f *fakeChatRepo) FindByID(_ context.Context, id uint) (domain.ChatMessage, error) {
	msg, ok := f.byID[id]
	if !ok {
		return domain.ChatMessage{}, ErrMessageNotFound
	}

	return msg, nil
}

func (f *fakeChatRepo) FindByProject(_ context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	f.gotLimit = limit
	if f.findListErr != nil {
		return nil, f.findListErr
	}

	messages := f.byProject[projectID]
	if len(messages) > limit {
		messages = messages[:limit]
	}

	return messages, nil
}

func TestChatService_ListProjectMessages(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := &fakeChatRepo{
		byProject: map[string][]domain.ChatMessage{
			"project-p": {
				{ID: 1, ProjectID: "project-p", Username: "alice", CreatedAt: base},
				{ID: 2, ProjectID: "project-p", Username: "bob", CreatedAt: base.Add(time.Minute)},
			},
		},
	}
	svc := NewChatService(repo, 0)

	views, err := svc.ListProjectMessages(context.Background(), "project-p")
	require.NoError(t, err)

	assert.Equal(t, DefaultHistoryLimit, repo.gotLimit)
	require.Len(t, views, 2)
	assert.Equal(t, uint(1), views[0].ID)
	assert.Equal(t, uint(2), views[1].ID)
	assert.True(t, views[0].CreatedAt.Before(views[1].CreatedAt))
	assert.Equal(t, "9:00:00 AM", views[0].Timestamp)
}

func TestChatService_ListProjectMessagesError(t *testing.T) {
	repo := &fakeChatRepo{findListErr: errors.New("db down")}
	svc := NewChatService(repo, 50)

	_, err := svc.ListProjectMessages(context.Background(), "project-p")

	assert.Error(t, err)
}

func TestChatService_GetMessageViewResolvesSender(t *testing.T) {
	senderID := uint(7)
	repo := &fakeChatRepo{
		byID: map[uint]domain.ChatMessage{
			5: {
				ID:        5,
				ProjectID: "project-p",
				UserID:    &senderID,
				Username:  "stored",
				Sender:    &domain.User{ID: senderID, Email: "alice@example.com"},
				CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			},
		},
	}
	svc := NewChatService(repo, 50)

	view, err := svc.GetMessageView(context.Background(), 5)
	require.NoError(t, err)

	// No stored name on the sender record, email wins over the
	// message's own username.
	assert.Equal(t, "alice@example.com", view.Username)
}

func TestChatService_PostMessageUsernamePrecedence(t *testing.T) {
	sender := domain.User{ID: 7, Name: "Alice", Email: "alice@example.com"}

	tests := []struct {
		name     string
		sender   domain.User
		override string
		want     string
	}{
		{name: "explicit override wins", sender: sender, override: "ally", want: "ally"},
		{name: "sender name next", sender: sender, want: "Alice"},
		{
			name:   "sender email last",
			sender: domain.User{ID: 7, Email: "alice@example.com"},
			want:   "alice@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeChatRepo{}
			svc := NewChatService(repo, 50)

			view, err := svc.PostMessage(context.Background(), "project-p", tt.sender, "hi", "", tt.override)
			require.NoError(t, err)

			assert.Equal(t, tt.want, view.Username)
			require.Len(t, repo.created, 1)
			assert.Equal(t, tt.want, repo.created[0].Username)
			require.NotNil(t, repo.created[0].UserID)
			assert.Equal(t, uint(7), *repo.created[0].UserID)
		})
	}
}

func TestChatService_PostMessagePersistenceFailure(t *testing.T) {
	repo := &fakeChatRepo{createErr: errors.New("insert failed")}
	svc := NewChatService(repo, 50)

	_, err := svc.PostMessage(context.Background(), "project-p", domain.User{ID: 1}, "hi", "", "")

	assert.Error(t, err)
}
