package models

import "time"

// Conversation is a direct (two participants) or group chat.
type Conversation struct {
	ID             int64      `db:"id" json:"id"`
	IsGroup        bool       `db:"is_group" json:"is_group"`
	GroupName      *string    `db:"group_name" json:"group_name,omitempty"`
	LastMessageID  *int64     `db:"last_message_id" json:"last_message_id,omitempty"`
	LastMessageAt  *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ParticipantIDs []int64    `db:"-" json:"participant_ids"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except userID.
func (c Conversation) OtherParticipants(userID int64) []int64 {
	others := make([]int64, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != userID {
			others = append(others, id)
		}
	}
	return others
}

// Participant is the user info attached to a conversation summary.
type Participant struct {
	UserID      int64   `db:"user_id" json:"user_id"`
	DisplayName string  `db:"display_name" json:"display_name"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url,omitempty"`
	IsOnline    bool    `db:"is_online" json:"is_online"`
}

// ConversationSummary is the list view of a conversation for one user.
type ConversationSummary struct {
	Conversation
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"last_message,omitempty"`
}
