package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// ConversationHandler обслуживает переписку клиентов и исполнителей.
type ConversationHandler struct {
	conversations *service.ConversationService
}

// NewConversationHandler создаёт хэндлер.
func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// Start обрабатывает POST /conversations: находит или создаёт диалог.
func (h *ConversationHandler) Start(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var req struct {
		ParticipantID uuid.UUID  `json:"participant_id" binding:"required"`
		ProjectID     *uuid.UUID `json:"project_id"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	conversation, err := h.conversations.Start(c.Request.Context(), actor, req.ParticipantID, req.ProjectID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// ListMine обрабатывает GET /conversations/my.
func (h *ConversationHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	items, err := h.conversations.List(c.Request.Context(), userID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// ListMessages обрабатывает GET /conversations/:id/messages.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	messages, err := h.conversations.Messages(c.Request.Context(), userID, id, limit, offset)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// SendMessage обрабатывает POST /conversations/:id/messages.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Content      string     `json:"content"`
		AttachmentID *uuid.UUID `json:"attachment_id"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	message, err := h.conversations.Send(c.Request.Context(), userID, id, req.Content, req.AttachmentID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// MarkRead обрабатывает POST /conversations/:id/read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	updated, err := h.conversations.MarkRead(c.Request.Context(), userID, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// CountUnread обрабатывает GET /conversations/unread/count.
func (h *ConversationHandler) CountUnread(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	count, err := h.conversations.CountUnread(c.Request.Context(), userID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}
