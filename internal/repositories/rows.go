package repositories

import (
	"database/sql"
	"time"

	"realtime-chat/internal/models"
)

const messageColumns = `id, conversation_id, sender_id, content, type, attachment_url, attachment_name, attachment_size, created_at`

type messageRow struct {
	ID             int64          `db:"id"`
	ConversationID int64          `db:"conversation_id"`
	SenderID       int64          `db:"sender_id"`
	Content        string         `db:"content"`
	Type           string         `db:"type"`
	AttachmentURL  sql.NullString `db:"attachment_url"`
	AttachmentName sql.NullString `db:"attachment_name"`
	AttachmentSize sql.NullInt64  `db:"attachment_size"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	msg := models.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Content:        r.Content,
		Type:           models.MessageType(r.Type),
		CreatedAt:      r.CreatedAt,
		ReadBy:         []models.ReadReceipt{},
	}
	if r.AttachmentURL.Valid {
		msg.Attachment = &models.Attachment{
			URL:       r.AttachmentURL.String,
			FileName:  r.AttachmentName.String,
			SizeBytes: r.AttachmentSize.Int64,
		}
	}
	return msg
}

// summaryRow is a conversation joined with its last message.
type summaryRow struct {
	models.Conversation
	LastID             sql.NullInt64  `db:"m_id"`
	LastSenderID       sql.NullInt64  `db:"m_sender_id"`
	LastContent        sql.NullString `db:"m_content"`
	LastType           sql.NullString `db:"m_type"`
	LastAttachmentURL  sql.NullString `db:"m_attachment_url"`
	LastAttachmentName sql.NullString `db:"m_attachment_name"`
	LastAttachmentSize sql.NullInt64  `db:"m_attachment_size"`
	LastCreatedAt      sql.NullTime   `db:"m_created_at"`
}

func (r summaryRow) lastMessage() *models.Message {
	if !r.LastID.Valid {
		return nil
	}
	msg := messageRow{
		ID:             r.LastID.Int64,
		ConversationID: r.ID,
		SenderID:       r.LastSenderID.Int64,
		Content:        r.LastContent.String,
		Type:           r.LastType.String,
		AttachmentURL:  r.LastAttachmentURL,
		AttachmentName: r.LastAttachmentName,
		AttachmentSize: r.LastAttachmentSize,
		CreatedAt:      r.LastCreatedAt.Time,
	}.toModel()
	return &msg
}

type participantRow struct {
	ConversationID int64 `db:"conversation_id"`
	models.Participant
}

type readRow struct {
	MessageID int64 `db:"message_id"`
	models.ReadReceipt
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
