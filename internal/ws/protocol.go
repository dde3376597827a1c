package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"realtime-chat/internal/models"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("malformed event")
)

type inboundEnvelope struct {
	Type models.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// decodeInbound parses a client frame into its typed payload.
func decodeInbound(raw []byte) (models.EventType, any, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	var payload any
	switch env.Type {
	case models.EventJoinConversation, models.EventLeaveConversation:
		payload = &models.ConversationRef{}
	case models.EventSendMessage:
		payload = &models.SendMessagePayload{}
	case models.EventTyping:
		payload = &models.TypingPayload{}
	case models.EventMarkAsRead:
		payload = &models.MarkAsReadPayload{}
	case models.EventInitiateCall:
		payload = &models.InitiateCallPayload{}
	case models.EventCallResponse:
		payload = &models.CallResponsePayload{}
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if len(env.Data) == 0 {
		return env.Type, nil, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return env.Type, nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if err := validatePayload(payload); err != nil {
		return env.Type, nil, err
	}
	return env.Type, payload, nil
}

func validatePayload(payload any) error {
	switch p := payload.(type) {
	case *models.ConversationRef:
		if p.ConversationID <= 0 {
			return fmt.Errorf("%w: conversation_id is required", ErrMalformedEvent)
		}
	case *models.SendMessagePayload:
		if p.ConversationID <= 0 {
			return fmt.Errorf("%w: conversation_id is required", ErrMalformedEvent)
		}
	case *models.TypingPayload:
		if p.ConversationID <= 0 {
			return fmt.Errorf("%w: conversation_id is required", ErrMalformedEvent)
		}
	case *models.MarkAsReadPayload:
		if p.MessageID <= 0 {
			return fmt.Errorf("%w: message_id is required", ErrMalformedEvent)
		}
		if p.ConversationID <= 0 {
			return fmt.Errorf("%w: conversation_id is required", ErrMalformedEvent)
		}
	case *models.InitiateCallPayload:
		if p.ConversationID <= 0 {
			return fmt.Errorf("%w: conversation_id is required", ErrMalformedEvent)
		}
		if strings.TrimSpace(p.CallType) == "" {
			return fmt.Errorf("%w: call_type is required", ErrMalformedEvent)
		}
	case *models.CallResponsePayload:
		if p.ConversationID <= 0 {
			return fmt.Errorf("%w: conversation_id is required", ErrMalformedEvent)
		}
	}
	return nil
}

func encodeEvent(eventType models.EventType, data any) ([]byte, error) {
	return json.Marshal(models.Event{Type: eventType, Data: data})
}
