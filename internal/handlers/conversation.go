package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/media"
	"realtime-chat/internal/models"
	"realtime-chat/internal/ratelimit"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
)

// Broadcaster pushes persisted changes to live connections.
type Broadcaster interface {
	PublishMessage(ctx context.Context, msg models.Message, conv models.Conversation)
	PublishRead(ctx context.Context, msg models.Message, readerID int64)
	PublishDeletion(ctx context.Context, msg models.Message)
}

// MediaIngestor stores attachments uploaded with a message.
type MediaIngestor interface {
	Ingest(ctx context.Context, ownerID int64, up media.Upload) (models.Attachment, models.MessageType, error)
}

type ConversationHandlerDeps struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Live          Broadcaster
	Media         MediaIngestor
	SendLimiter   ratelimit.Limiter
	Audit         *telemetry.AuditEmitter
}

// ConversationHandler serves the conversation and message endpoints.
type ConversationHandler struct {
	convs    repositories.ConversationRepository
	messages repositories.MessageRepository
	live     Broadcaster
	media    MediaIngestor
	limiter  ratelimit.Limiter
	audit    *telemetry.AuditEmitter
}

func NewConversationHandler(deps ConversationHandlerDeps) *ConversationHandler {
	limiter := deps.SendLimiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &ConversationHandler{
		convs:    deps.Conversations,
		messages: deps.Messages,
		live:     deps.Live,
		media:    deps.Media,
		limiter:  limiter,
		audit:    deps.Audit,
	}
}

// ListConversations returns the caller's conversations, most recent first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := userIDFromContext(c)

	summaries, err := h.convs.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation finds or creates the direct conversation with another user.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		ParticipantID int64 `json:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	conv, created, err := h.convs.FindOrCreateDirect(c.Request.Context(), userID, req.ParticipantID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.audit.Emit(c.Request.Context(), "conversation_created", telemetry.LevelInfo,
			"direct conversation "+strconv.FormatInt(conv.ID, 10), requestIDFromContext(c), userID)
	}
	c.JSON(status, gin.H{"conversation": conv})
}

// CreateGroup creates a named group conversation owned by the caller.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string  `json:"name" binding:"required"`
		MemberIDs []int64 `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	conv, err := h.convs.CreateGroup(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "conversation_created", telemetry.LevelInfo,
		"group conversation "+strconv.FormatInt(conv.ID, 10), requestIDFromContext(c), userID)
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// GetMessages returns one page of history, oldest first within the page.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	page, err := queryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	limit, err := queryInt(c, "limit", repositories.DefaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), conversationID, userIDFromContext(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
