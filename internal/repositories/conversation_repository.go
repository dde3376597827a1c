package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"realtime-chat/internal/models"
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindOrCreateDirect(ctx context.Context, userA, userB int64) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	ConversationIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	ListForUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	GetSummary(ctx context.Context, conversationID int64) (models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, is_group, group_name, last_message_id, last_message_at, created_at`

// directKey identifies the unordered pair of a direct conversation.
func directKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// FindOrCreateDirect returns the direct conversation for the pair, creating it
// when missing. The unique direct_key makes concurrent calls converge on one row.
func (r *ConversationRepo) FindOrCreateDirect(ctx context.Context, userA, userB int64) (models.Conversation, bool, error) {
	if userA == userB {
		return models.Conversation{}, false, ErrSelfConversation
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, storeError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := directKey(userA, userB)
	created := true
	var id int64
	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, direct_key) VALUES (FALSE, $1)
        ON CONFLICT (direct_key) DO NOTHING RETURNING id`, key).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = false
		if err := tx.GetContext(ctx, &id, `SELECT id FROM conversations WHERE direct_key=$1`, key); err != nil {
			return models.Conversation{}, false, storeError("find direct conversation", err)
		}
	case err != nil:
		return models.Conversation{}, false, storeError("create direct conversation", err)
	default:
		if err := insertParticipants(ctx, tx, id, []int64{userA, userB}); err != nil {
			return models.Conversation{}, false, err
		}
	}

	conv, err := getConversation(ctx, tx, id, false)
	if err != nil {
		return models.Conversation{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, false, storeError("commit", err)
	}
	return conv, created, nil
}

// CreateGroup creates a group conversation with the owner as first participant.
func (r *ConversationRepo) CreateGroup(ctx context.Context, ownerID int64, name string, memberIDs []int64) (models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Conversation{}, fmt.Errorf("%w: group name is required", ErrInvalidConversation)
	}

	// owner first, members deduplicated in request order
	seen := map[int64]struct{}{ownerID: {}}
	participants := []int64{ownerID}
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}
	if len(participants) < 2 {
		return models.Conversation{}, fmt.Errorf("%w: a group needs at least one other member", ErrInvalidConversation)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, storeError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, group_name) VALUES (TRUE, $1) RETURNING id`, name).Scan(&id); err != nil {
		return models.Conversation{}, storeError("create group", err)
	}
	if err := insertParticipants(ctx, tx, id, participants); err != nil {
		return models.Conversation{}, err
	}

	conv, err := getConversation(ctx, tx, id, false)
	if err != nil {
		return models.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, storeError("commit", err)
	}
	return conv, nil
}

// GetConversation fetches a conversation with its participant ids.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	return getConversation(ctx, r.db, conversationID, false)
}

// ConversationIDsForUser lists the conversations a user participates in.
func (r *ConversationRepo) ConversationIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM conversation_participants WHERE user_id=$1`, userID); err != nil {
		return nil, storeError("list conversation ids", err)
	}
	return ids, nil
}

const summarySelect = `SELECT c.id, c.is_group, c.group_name, c.last_message_id, c.last_message_at, c.created_at,
        m.id AS m_id, m.sender_id AS m_sender_id, m.content AS m_content, m.type AS m_type,
        m.attachment_url AS m_attachment_url, m.attachment_name AS m_attachment_name,
        m.attachment_size AS m_attachment_size, m.created_at AS m_created_at
        FROM conversations c`

// ListForUser returns the user's conversations, most recently active first.
// Conversations without messages sort last.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	query := summarySelect + `
        JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
        LEFT JOIN messages m ON m.id = c.last_message_id
        ORDER BY c.last_message_at DESC NULLS LAST, c.id DESC`
	var rows []summaryRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, storeError("list conversations", err)
	}
	return r.attachParticipants(ctx, rows)
}

// GetSummary returns a single conversation summary.
func (r *ConversationRepo) GetSummary(ctx context.Context, conversationID int64) (models.ConversationSummary, error) {
	query := summarySelect + `
        LEFT JOIN messages m ON m.id = c.last_message_id
        WHERE c.id = $1`
	var rows []summaryRow
	if err := r.db.SelectContext(ctx, &rows, query, conversationID); err != nil {
		return models.ConversationSummary{}, storeError("get summary", err)
	}
	if len(rows) == 0 {
		return models.ConversationSummary{}, ErrConversationNotFound
	}
	summaries, err := r.attachParticipants(ctx, rows)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	return summaries[0], nil
}

func (r *ConversationRepo) attachParticipants(ctx context.Context, rows []summaryRow) ([]models.ConversationSummary, error) {
	result := make([]models.ConversationSummary, 0, len(rows))
	if len(rows) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var participants []participantRow
	err := r.db.SelectContext(ctx, &participants, `SELECT cp.conversation_id, u.id AS user_id, u.display_name, u.avatar_url,
        COALESCE(pr.is_online, FALSE) AS is_online
        FROM conversation_participants cp
        JOIN users u ON u.id = cp.user_id
        LEFT JOIN user_presence pr ON pr.user_id = cp.user_id
        WHERE cp.conversation_id = ANY($1)
        ORDER BY cp.conversation_id, cp.position`, pq.Array(ids))
	if err != nil {
		return nil, storeError("list participants", err)
	}

	byConversation := map[int64][]models.Participant{}
	for _, p := range participants {
		byConversation[p.ConversationID] = append(byConversation[p.ConversationID], p.Participant)
	}

	for _, row := range rows {
		summary := models.ConversationSummary{
			Conversation: row.Conversation,
			Participants: byConversation[row.ID],
			LastMessage:  row.lastMessage(),
		}
		for _, p := range summary.Participants {
			summary.ParticipantIDs = append(summary.ParticipantIDs, p.UserID)
		}
		result = append(result, summary)
	}
	return result, nil
}

func insertParticipants(ctx context.Context, tx *sqlx.Tx, conversationID int64, userIDs []int64) error {
	for pos, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, position) VALUES ($1, $2, $3)`,
			conversationID, userID, pos); err != nil {
			if isForeignKeyViolation(err) {
				return ErrUserNotFound
			}
			return storeError("add participant", err)
		}
	}
	return nil
}

func getConversation(ctx context.Context, q sqlx.QueryerContext, conversationID int64, forUpdate bool) (models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var conv models.Conversation
	if err := sqlx.GetContext(ctx, q, &conv, query, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, storeError("get conversation", err)
	}
	if err := sqlx.SelectContext(ctx, q, &conv.ParticipantIDs,
		`SELECT user_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY position`, conversationID); err != nil {
		return models.Conversation{}, storeError("get participants", err)
	}
	return conv, nil
}

func isParticipant(ctx context.Context, q sqlx.QueryerContext, conversationID, userID int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	if err != nil {
		return false, storeError("check participant", err)
	}
	return exists, nil
}
