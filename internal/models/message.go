package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength is the maximum message length in characters.
const MaxContentLength = 1000

var ErrInvalidMessage = errors.New("invalid message")

// MessageType classifies message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
	MessageFile  MessageType = "file"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile:
		return true
	}
	return false
}

// MessageTypeForMIME maps a content type to the message type used for attachments.
func MessageTypeForMIME(contentType string) MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MessageImage
	case strings.HasPrefix(contentType, "video/"):
		return MessageVideo
	case strings.HasPrefix(contentType, "audio/"):
		return MessageAudio
	default:
		return MessageFile
	}
}

// Attachment references uploaded media.
type Attachment struct {
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
}

// ReadReceipt records when a user read a message.
type ReadReceipt struct {
	UserID int64     `db:"user_id" json:"user_id"`
	ReadAt time.Time `db:"read_at" json:"read_at"`
}

// Message is a persisted chat message.
type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversation_id"`
	SenderID       int64         `json:"sender_id"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Attachment     *Attachment   `json:"attachment,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ReadBy         []ReadReceipt `json:"read_by"`
}

// NewMessage is the input for appending a message to a conversation.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	Content        string
	Type           MessageType
	Attachment     *Attachment
}

// Normalize fills defaults and checks the message against content rules.
func (m *NewMessage) Normalize() error {
	if m.Type == "" {
		m.Type = MessageText
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if m.Attachment != nil && m.Content == "" {
		m.Content = m.Attachment.URL
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(m.Content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, MaxContentLength)
	}
	return nil
}
