package models

import (
	"encoding/json"
	"time"
)

// EventType names a live protocol event.
type EventType string

// Inbound events sent by clients.
const (
	EventJoinConversation  EventType = "joinConversation"
	EventLeaveConversation EventType = "leaveConversation"
	EventSendMessage       EventType = "sendMessage"
	EventTyping            EventType = "typing"
	EventMarkAsRead        EventType = "markAsRead"
	EventInitiateCall      EventType = "initiateCall"
	EventCallResponse      EventType = "callResponse" // relayed outbound under the same name
)

// Outbound events pushed to clients.
const (
	EventNewMessage          EventType = "newMessage"
	EventConversationUpdated EventType = "conversationUpdated"
	EventUserTyping          EventType = "userTyping"
	EventMessageRead         EventType = "messageRead"
	EventMessageDeleted      EventType = "messageDeleted"
	EventUserOnline          EventType = "userOnline"
	EventUserOffline         EventType = "userOffline"
	EventIncomingCall        EventType = "incomingCall"
	EventError               EventType = "error"
)

// Event is the wire envelope for outbound events.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type ConversationRef struct {
	ConversationID int64 `json:"conversation_id"`
}

type SendMessagePayload struct {
	ConversationID int64       `json:"conversation_id"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"message_type"`
}

type TypingPayload struct {
	ConversationID int64 `json:"conversation_id"`
	IsTyping       bool  `json:"is_typing"`
}

type MarkAsReadPayload struct {
	MessageID      int64 `json:"message_id"`
	ConversationID int64 `json:"conversation_id"`
}

// InitiateCallPayload carries opaque signalling in CallData; the server relays
// it untouched.
type InitiateCallPayload struct {
	ConversationID int64           `json:"conversation_id"`
	CallType       string          `json:"call_type"`
	CallData       json.RawMessage `json:"call_data,omitempty"`
}

type CallResponsePayload struct {
	ConversationID int64           `json:"conversation_id"`
	Accepted       bool            `json:"accepted"`
	CallData       json.RawMessage `json:"call_data,omitempty"`
}

type NewMessageEvent struct {
	Message        Message `json:"message"`
	ConversationID int64   `json:"conversation_id"`
}

type ConversationUpdatedEvent struct {
	Summary ConversationSummary `json:"summary"`
}

type UserTypingEvent struct {
	UserID         int64 `json:"user_id"`
	ConversationID int64 `json:"conversation_id"`
	IsTyping       bool  `json:"is_typing"`
}

type MessageReadEvent struct {
	MessageID      int64 `json:"message_id"`
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
}

type MessageDeletedEvent struct {
	MessageID      int64 `json:"message_id"`
	ConversationID int64 `json:"conversation_id"`
}

type PresenceEvent struct {
	UserID     int64      `json:"user_id"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type IncomingCallEvent struct {
	FromUserID     int64           `json:"from_user_id"`
	ConversationID int64           `json:"conversation_id"`
	CallType       string          `json:"call_type"`
	CallData       json.RawMessage `json:"call_data,omitempty"`
}

type CallResponseEvent struct {
	FromUserID     int64           `json:"from_user_id"`
	ConversationID int64           `json:"conversation_id"`
	Accepted       bool            `json:"accepted"`
	CallData       json.RawMessage `json:"call_data,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
