package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-chat/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, in models.NewMessage) (models.Message, models.Conversation, error)
	ListMessages(ctx context.Context, conversationID, requesterID int64, page, pageSize int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID int64) (models.Message, error)
	MarkRead(ctx context.Context, messageID, userID int64) (models.Message, bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage stores a message and advances the conversation's last-message
// pointer in one transaction. The conversation row is locked so concurrent
// appends to the same conversation are serialized.
func (r *MessageRepo) AppendMessage(ctx context.Context, in models.NewMessage) (models.Message, models.Conversation, error) {
	if err := in.Normalize(); err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, models.Conversation{}, storeError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	conv, err := getConversation(ctx, tx, in.ConversationID, true)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	if !conv.HasParticipant(in.SenderID) {
		return models.Message{}, models.Conversation{}, ErrNotParticipant
	}

	var (
		attachURL, attachName sql.NullString
		attachSize            sql.NullInt64
	)
	if in.Attachment != nil {
		attachURL = nullString(in.Attachment.URL)
		attachName = nullString(in.Attachment.FileName)
		attachSize = sql.NullInt64{Int64: in.Attachment.SizeBytes, Valid: true}
	}

	var row messageRow
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content, type, attachment_url, attachment_name, attachment_size)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+messageColumns,
		in.ConversationID, in.SenderID, in.Content, string(in.Type), attachURL, attachName, attachSize).StructScan(&row)
	if err != nil {
		return models.Message{}, models.Conversation{}, storeError("insert message", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_id=$1, last_message_at=$2 WHERE id=$3`,
		row.ID, row.CreatedAt, conv.ID); err != nil {
		return models.Message{}, models.Conversation{}, storeError("update last message", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, models.Conversation{}, storeError("commit", err)
	}

	msg := row.toModel()
	conv.LastMessageID = &msg.ID
	conv.LastMessageAt = &msg.CreatedAt
	return msg, conv, nil
}

// ListMessages returns one page of history in chronological order. Page 1 is
// the most recent pageSize messages.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID, requesterID int64, page, pageSize int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	member, err := isParticipant(ctx, r.db, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotParticipant
	}

	var rows []messageRow
	err = r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1
        ORDER BY id DESC
        LIMIT $2 OFFSET $3`, conversationID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, storeError("list messages", err)
	}

	msgs := make([]models.Message, len(rows))
	for i, row := range rows {
		msgs[len(rows)-1-i] = row.toModel()
	}
	if err := r.attachReceipts(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage retrieves a single message with its read receipts.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	msg, err := getMessage(ctx, r.db, messageID)
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{msg}
	if err := r.attachReceipts(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// DeleteMessage removes a message for everyone. Only the sender may delete.
// The conversation's last-message pointer is recomputed in the same transaction.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID, requesterID int64) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, storeError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	msg, err := getMessage(ctx, tx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != requesterID {
		return models.Message{}, ErrNotOwner
	}

	if _, err := tx.ExecContext(ctx, `SELECT id FROM conversations WHERE id=$1 FOR UPDATE`, msg.ConversationID); err != nil {
		return models.Message{}, storeError("lock conversation", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID); err != nil {
		return models.Message{}, storeError("delete message", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations c SET (last_message_id, last_message_at) =
        (SELECT m.id, m.created_at FROM messages m WHERE m.conversation_id = c.id ORDER BY m.id DESC LIMIT 1)
        WHERE c.id=$1`, msg.ConversationID); err != nil {
		return models.Message{}, storeError("recompute last message", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, storeError("commit", err)
	}
	return msg, nil
}

// MarkRead records a read receipt. Repeated calls keep the first receipt;
// inserted reports whether this call created it.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID int64) (models.Message, bool, error) {
	msg, err := getMessage(ctx, r.db, messageID)
	if err != nil {
		return models.Message{}, false, err
	}
	member, err := isParticipant(ctx, r.db, msg.ConversationID, userID)
	if err != nil {
		return models.Message{}, false, err
	}
	if !member {
		return models.Message{}, false, ErrNotParticipant
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return models.Message{}, false, storeError("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, false, storeError("mark read", err)
	}
	return msg, n > 0, nil
}

func (r *MessageRepo) attachReceipts(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, len(msgs))
	index := make(map[int64]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		index[m.ID] = i
	}

	var reads []readRow
	if err := r.db.SelectContext(ctx, &reads, `SELECT message_id, user_id, read_at FROM message_reads
        WHERE message_id = ANY($1) ORDER BY read_at`, pq.Array(ids)); err != nil {
		return storeError("list read receipts", err)
	}
	for _, rr := range reads {
		if i, ok := index[rr.MessageID]; ok {
			msgs[i].ReadBy = append(msgs[i].ReadBy, rr.ReadReceipt)
		}
	}
	return nil
}

func getMessage(ctx context.Context, q sqlx.QueryerContext, messageID int64) (models.Message, error) {
	var row messageRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, storeError("get message", err)
	}
	return row.toModel(), nil
}
