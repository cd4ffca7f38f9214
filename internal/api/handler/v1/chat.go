package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/api/handler/v1/request"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/api/handler/v1/response"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/changefeed"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/domain"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/pkg/sse"
)

type ChatService interface {
	ListProjectMessages(ctx context.Context, projectID string) ([]domain.MessageView, error)
	GetMessageView(ctx context.Context, id uint) (domain.MessageView, error)
	PostMessage(ctx context.Context, projectID string, sender domain.User, body, fileURL, username string) (domain.MessageView, error)
}

type ChatHandler struct {
	svc  ChatService
	uSvc UserService
	feed changefeed.Feed
}

func NewChatHandler(svc ChatService, uSvc UserService, feed changefeed.Feed) *ChatHandler {
	return &ChatHandler{
		svc:  svc,
		uSvc: uSvc,
		feed: feed,
	}
}

// HandleStreamMessages godoc
// @Summary      Stream chat messages for a project
// @Description  Opens a server-sent event stream: one "initial-messages" event with up to the 50 oldest messages, then a "new-message" event per insert.
// @Tags         chat
// @Produce      text/event-stream
// @Param        projectID   path      string true "Project ID"
// @Success      200      {string}   string "event stream"
// @Failure      401      {object}   response.Err
// @Router       /chat/{projectID} [get]
// @Security     BearerAuth
func (h *ChatHandler) HandleStreamMessages(ctx *gin.Context) {
	projectID := ctx.Param("projectID")

	sse.SetHeaders(ctx.Writer)

	writer, err := sse.NewWriter(ctx.Writer)
	if err != nil {
		ctx.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before loading history so inserts racing the snapshot
	// queue up instead of getting lost. The loop below only drains the
	// subscription after the snapshot went out, which keeps the
	// snapshot-before-live ordering.
	sub := h.feed.Subscribe(projectID)
	defer sub.Close()

	views, err := h.svc.ListProjectMessages(ctx.Request.Context(), projectID)
	if err != nil {
		zap.L().Error("failed to fetch initial messages",
			zap.String("projectID", projectID), zap.Error(err))

		// Keep the stream open; the client can still receive live events.
		if err = writer.WriteEvent("error", response.StreamError{Error: "Failed to fetch messages"}); err != nil {
			return
		}
	} else {
		if err = writer.WriteEvent("initial-messages", views); err != nil {
			return
		}
	}

	done := ctx.Request.Context().Done()
	for {
		select {
		case <-done:
			// Client went away; the deferred Close releases the subscription.
			return
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}

			// Re-fetch so the view carries the resolved sender, exactly
			// like the history path.
			view, err := h.svc.GetMessageView(ctx.Request.Context(), msg.ID)
			if err != nil {
				zap.L().Error("failed to process new message",
					zap.Uint("messageID", msg.ID), zap.Error(err))
				continue
			}

			if err = writer.WriteEvent("new-message", view); err != nil {
				zap.L().Warn("failed to write new-message event", zap.Error(err))
				return
			}
		}
	}
}

// HandleSendMessage godoc
// @Summary      Send a chat message
// @Description  Persists a message for a project. Connected streams receive it via the change feed.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Param        request   body      request.SendMessageRequest true "request body"
// @Success      201      {object}   response.SendMessageResponse
// @Failure      400      {object}   response.Err
// @Failure      401      {object}   response.Err
// @Failure      500      {object}   response.SendMessageError
// @Router       /chat/send [post]
// @Security     BearerAuth
func (h *ChatHandler) HandleSendMessage(ctx *gin.Context) {
	var req request.SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	user, respErr := getUserFromContext(ctx, h.uSvc)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	view, err := h.svc.PostMessage(ctx.Request.Context(), req.ProjectID, user, req.Message, req.FileURL, req.Username)
	if err != nil {
		err = fmt.Errorf("v1.HandleSendMessage -> h.svc.PostMessage -> %w", err)
		zap.L().Error("failed to send message", zap.Error(err))

		ctx.JSON(http.StatusInternalServerError, response.SendMessageError{
			Error:   "Failed to send message",
			Details: err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusCreated, response.SendMessageResponse{
		Success: true,
		Message: view,
	})
}
