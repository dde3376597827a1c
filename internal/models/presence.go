package models

import "time"

// User mirrors the identity collaborator's view of an account.
type User struct {
	ID          int64   `db:"id" json:"id"`
	ExternalID  *string `db:"external_id" json:"-"`
	Email       string  `db:"email" json:"email"`
	DisplayName string  `db:"display_name" json:"display_name"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url,omitempty"`
	Phone       *string `db:"phone" json:"phone,omitempty"`
}

// Presence is the durable online state of a user.
type Presence struct {
	UserID     int64      `db:"user_id" json:"user_id"`
	IsOnline   bool       `db:"is_online" json:"is_online"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}
