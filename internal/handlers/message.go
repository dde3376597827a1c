package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/media"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/telemetry"
)

// messageInput is a send request read from either a JSON body or a
// multipart form carrying a file.
type messageInput struct {
	RecipientID int64
	Content     string
	Type        models.MessageType
	File        *multipart.FileHeader
}

func readMessageInput(c *gin.Context) (messageInput, error) {
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		in := messageInput{Content: c.PostForm("content")}
		if raw := c.PostForm("recipient_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return messageInput{}, errors.New("invalid recipient_id")
			}
			in.RecipientID = id
		}
		file, err := c.FormFile("file")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			return messageInput{}, fmt.Errorf("invalid file: %w", err)
		}
		in.File = file
		return in, nil
	}

	var req struct {
		RecipientID int64              `json:"recipient_id"`
		Content     string             `json:"content"`
		Type        models.MessageType `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return messageInput{}, err
	}
	return messageInput{RecipientID: req.RecipientID, Content: req.Content, Type: req.Type}, nil
}

// attach uploads the file carried by in, if any, and sets the message type
// from its content type.
func (h *ConversationHandler) attach(ctx context.Context, userID int64, in messageInput, msg *models.NewMessage) error {
	if in.File == nil {
		return nil
	}
	if h.media == nil {
		return fmt.Errorf("%w: attachments are not configured", media.ErrIngestFailed)
	}

	f, err := in.File.Open()
	if err != nil {
		return fmt.Errorf("%w: open upload: %w", media.ErrRejected, err)
	}
	defer f.Close()

	attachment, msgType, err := h.media.Ingest(ctx, userID, media.Upload{
		FileName:    in.File.Filename,
		ContentType: in.File.Header.Get("Content-Type"),
		Size:        in.File.Size,
		Body:        f,
	})
	if err != nil {
		return err
	}
	msg.Attachment = &attachment
	msg.Type = msgType
	return nil
}

func (h *ConversationHandler) allowSend(c *gin.Context, userID int64) bool {
	if h.limiter.Allow("user:" + strconv.FormatInt(userID, 10)) {
		return true
	}
	observability.IncRateLimited("http_send")
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	return false
}

// send persists the message and pushes it to live connections.
func (h *ConversationHandler) send(c *gin.Context, in models.NewMessage) {
	msg, conv, err := h.messages.AppendMessage(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	observability.IncMessagePersisted(string(msg.Type), "http")
	h.live.PublishMessage(c.Request.Context(), msg, conv)
	c.JSON(http.StatusCreated, msg)
}

// PostMessage appends a text or attachment message to a conversation.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}
	in, err := readMessageInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if !h.allowSend(c, userID) {
		return
	}

	ctx := c.Request.Context()
	if in.File != nil {
		// Membership is checked before storing the upload.
		conv, err := h.convs.GetConversation(ctx, conversationID)
		if err != nil {
			respondError(c, err)
			return
		}
		if !conv.HasParticipant(userID) {
			respondError(c, repositories.ErrNotParticipant)
			return
		}
	}

	msg := models.NewMessage{ConversationID: conversationID, SenderID: userID, Content: in.Content, Type: in.Type}
	if err := h.attach(ctx, userID, in, &msg); err != nil {
		respondError(c, err)
		return
	}
	h.send(c, msg)
}

// SendToUser sends a message to another user, creating the direct
// conversation on first contact. The message is validated and its upload
// stored before the conversation is created.
func (h *ConversationHandler) SendToUser(c *gin.Context) {
	in, err := readMessageInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.RecipientID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
		return
	}

	userID := userIDFromContext(c)
	if !h.allowSend(c, userID) {
		return
	}

	ctx := c.Request.Context()
	msg := models.NewMessage{SenderID: userID, Content: in.Content, Type: in.Type}
	// Attachment-only messages take their content from the upload.
	if in.File == nil || strings.TrimSpace(in.Content) != "" {
		if err := msg.Normalize(); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := h.attach(ctx, userID, in, &msg); err != nil {
		respondError(c, err)
		return
	}
	if err := msg.Normalize(); err != nil {
		respondError(c, err)
		return
	}

	conv, created, err := h.convs.FindOrCreateDirect(ctx, userID, in.RecipientID)
	if err != nil {
		respondError(c, err)
		return
	}
	if created {
		h.audit.Emit(ctx, "conversation_created", telemetry.LevelInfo,
			"direct conversation "+strconv.FormatInt(conv.ID, 10), requestIDFromContext(c), userID)
	}

	msg.ConversationID = conv.ID
	h.send(c, msg)
}

// DeleteMessage removes a message sent by the caller.
func (h *ConversationHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := parseIDParam(c, "message_id")
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	msg, err := h.messages.DeleteMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.live.PublishDeletion(c.Request.Context(), msg)
	h.audit.Emit(c.Request.Context(), "message_deleted", telemetry.LevelInfo,
		"message "+strconv.FormatInt(msg.ID, 10), requestIDFromContext(c), userID)
	c.Status(http.StatusNoContent)
}

// MarkRead records a read receipt for the caller. Repeats succeed without a
// second notification.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	messageID, ok := parseIDParam(c, "message_id")
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	msg, inserted, err := h.messages.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	if inserted {
		h.live.PublishRead(c.Request.Context(), msg, userID)
	}
	c.Status(http.StatusNoContent)
}
