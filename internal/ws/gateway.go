package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/ratelimit"
	"realtime-chat/internal/repositories"
)

var ErrAuthentication = errors.New("authentication failed")

type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
}

type PresenceTracker interface {
	MarkOnline(ctx context.Context, userID int64) (models.Presence, bool, error)
	MarkOffline(ctx context.Context, userID int64) (models.Presence, bool, error)
}

type GatewayDeps struct {
	Registry      *Registry
	Presence      PresenceTracker
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Users         UserLookup
	Verifier      TokenVerifier
	SendLimiter   ratelimit.Limiter
}

// Gateway authenticates live connections, routes inbound events and fans out
// outbound events to every live connection of the target users.
type Gateway struct {
	registry      *Registry
	presence      PresenceTracker
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         UserLookup
	verifier      TokenVerifier
	sendLimiter   ratelimit.Limiter
}

func NewGateway(deps GatewayDeps) *Gateway {
	limiter := deps.SendLimiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Gateway{
		registry:      deps.Registry,
		presence:      deps.Presence,
		conversations: deps.Conversations,
		messages:      deps.Messages,
		users:         deps.Users,
		verifier:      deps.Verifier,
		sendLimiter:   limiter,
	}
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Connect authenticates and registers the client, then announces the user when
// this is the first connection.
func (g *Gateway) Connect(ctx context.Context, c *Client, token string) error {
	if err := g.Authenticate(ctx, c, token); err != nil {
		return err
	}
	g.Announce(ctx, c)
	return nil
}

// Authenticate verifies the token, registers the client and joins it to all of
// its conversations. On failure the client is closed and never registered.
func (g *Gateway) Authenticate(ctx context.Context, c *Client, token string) error {
	c.setState(StateAuthenticating)

	userID, err := g.verifier.Verify(token)
	if err != nil {
		c.close()
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if _, err := g.users.GetUser(ctx, userID); err != nil {
		c.close()
		if errors.Is(err, repositories.ErrUserNotFound) {
			return fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		return fmt.Errorf("load user: %w", err)
	}
	conversationIDs, err := g.conversations.ConversationIDsForUser(ctx, userID)
	if err != nil {
		c.close()
		return fmt.Errorf("load conversations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		c.close()
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	c.authenticate(userID)
	g.registry.Register(c)
	g.registry.Join(c, conversationIDs...)
	observability.IncWSActive()
	return nil
}

// Announce marks an authenticated client's user online and tells everyone
// else when that is a transition.
func (g *Gateway) Announce(ctx context.Context, c *Client) {
	userID := c.UserID()
	if userID == 0 {
		return
	}
	p, changed, err := g.presence.MarkOnline(context.WithoutCancel(ctx), userID)
	if err != nil {
		slog.Warn("mark online failed", "user_id", userID, "error", err)
		return
	}
	if changed {
		g.broadcastPresence(userID, models.EventUserOnline, p)
	}
}

// Disconnect unregisters the client and announces the user as offline when it
// was the last connection. Safe to call more than once.
func (g *Gateway) Disconnect(ctx context.Context, c *Client) {
	userID, offline := g.registry.Unregister(c)
	c.close()
	if userID == 0 {
		return
	}
	observability.DecWSActive()
	if !offline {
		return
	}

	p, changed, err := g.presence.MarkOffline(ctx, userID)
	if err != nil {
		slog.Warn("mark offline failed", "user_id", userID, "error", err)
		return
	}
	if changed {
		g.broadcastPresence(userID, models.EventUserOffline, p)
	}
}

// Dispatch decodes one inbound frame and handles it. Errors are reported to
// the sending connection only.
func (g *Gateway) Dispatch(ctx context.Context, c *Client, raw []byte) {
	if c.State() != StateAuthenticated {
		return
	}

	eventType, payload, err := decodeInbound(raw)
	if err != nil {
		observability.IncWSEvent("in", "invalid")
		g.sendError(c, err.Error())
		return
	}
	observability.IncWSEvent("in", string(eventType))

	switch p := payload.(type) {
	case *models.ConversationRef:
		if eventType == models.EventJoinConversation {
			g.JoinConversation(c, p.ConversationID)
		} else {
			g.LeaveConversation(c, p.ConversationID)
		}
	case *models.SendMessagePayload:
		g.SendMessage(ctx, c, *p)
	case *models.TypingPayload:
		g.Typing(ctx, c, *p)
	case *models.MarkAsReadPayload:
		g.MarkRead(ctx, c, *p)
	case *models.InitiateCallPayload:
		g.InitiateCall(ctx, c, *p)
	case *models.CallResponsePayload:
		g.RespondToCall(ctx, c, *p)
	}
}

// JoinConversation subscribes the connection to a conversation room.
// Delivery never depends on rooms, so no membership lookup is made.
func (g *Gateway) JoinConversation(c *Client, conversationID int64) {
	g.registry.Join(c, conversationID)
}

func (g *Gateway) LeaveConversation(c *Client, conversationID int64) {
	g.registry.Leave(c, conversationID)
}

// SendMessage persists a message and fans it out to every participant,
// including the sender's other connections.
func (g *Gateway) SendMessage(ctx context.Context, c *Client, in models.SendMessagePayload) {
	userID := c.UserID()
	if !g.sendLimiter.Allow("user:" + strconv.FormatInt(userID, 10)) {
		observability.IncRateLimited("ws_send")
		g.sendError(c, "rate limit exceeded")
		return
	}

	msg, conv, err := g.messages.AppendMessage(ctx, models.NewMessage{
		ConversationID: in.ConversationID,
		SenderID:       userID,
		Content:        in.Content,
		Type:           in.MessageType,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrStoreUnavailable) {
			slog.Error("append message failed", "user_id", userID, "conversation_id", in.ConversationID, "error", err)
		}
		g.sendError(c, clientMessage(err))
		return
	}
	observability.IncMessagePersisted(string(msg.Type), "ws")
	g.PublishMessage(ctx, msg, conv)
}

// PublishMessage fans out a persisted message and the refreshed conversation
// summary to every participant.
func (g *Gateway) PublishMessage(ctx context.Context, msg models.Message, conv models.Conversation) {
	g.fanout(conv.ParticipantIDs, models.EventNewMessage, models.NewMessageEvent{
		Message:        msg,
		ConversationID: conv.ID,
	})

	summary, err := g.conversations.GetSummary(ctx, conv.ID)
	if err != nil {
		slog.Warn("conversation summary unavailable", "conversation_id", conv.ID, "error", err)
		return
	}
	g.fanout(conv.ParticipantIDs, models.EventConversationUpdated, models.ConversationUpdatedEvent{Summary: summary})
}

// Typing relays a typing indicator to the other participants.
func (g *Gateway) Typing(ctx context.Context, c *Client, in models.TypingPayload) {
	userID := c.UserID()
	g.relay(ctx, userID, in.ConversationID, models.EventUserTyping, models.UserTypingEvent{
		UserID:         userID,
		ConversationID: in.ConversationID,
		IsTyping:       in.IsTyping,
	})
}

// InitiateCall rings the other participants of a conversation.
func (g *Gateway) InitiateCall(ctx context.Context, c *Client, in models.InitiateCallPayload) {
	userID := c.UserID()
	g.relay(ctx, userID, in.ConversationID, models.EventIncomingCall, models.IncomingCallEvent{
		FromUserID:     userID,
		ConversationID: in.ConversationID,
		CallType:       in.CallType,
		CallData:       in.CallData,
	})
}

// RespondToCall relays an accept or decline back to the other participants.
func (g *Gateway) RespondToCall(ctx context.Context, c *Client, in models.CallResponsePayload) {
	userID := c.UserID()
	g.relay(ctx, userID, in.ConversationID, models.EventCallResponse, models.CallResponseEvent{
		FromUserID:     userID,
		ConversationID: in.ConversationID,
		Accepted:       in.Accepted,
		CallData:       in.CallData,
	})
}

// relay sends an ephemeral event to every participant but the sender. Unknown
// conversations and non-members are dropped silently.
func (g *Gateway) relay(ctx context.Context, senderID, conversationID int64, eventType models.EventType, data any) {
	conv, err := g.conversations.GetConversation(ctx, conversationID)
	if err != nil || !conv.HasParticipant(senderID) {
		return
	}
	g.fanout(conv.OtherParticipants(senderID), eventType, data)
}

// MarkRead records a read receipt and notifies the other participants the
// first time the reader marks the message.
func (g *Gateway) MarkRead(ctx context.Context, c *Client, in models.MarkAsReadPayload) {
	userID := c.UserID()
	msg, inserted, err := g.messages.MarkRead(ctx, in.MessageID, userID)
	if err != nil {
		g.sendError(c, clientMessage(err))
		return
	}
	if inserted {
		g.PublishRead(ctx, msg, userID)
	}
}

// PublishRead notifies everyone but the reader that msg was read.
func (g *Gateway) PublishRead(ctx context.Context, msg models.Message, readerID int64) {
	conv, err := g.conversations.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		slog.Warn("read receipt fan-out skipped", "message_id", msg.ID, "error", err)
		return
	}
	g.fanout(conv.OtherParticipants(readerID), models.EventMessageRead, models.MessageReadEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         readerID,
	})
}

// PublishDeletion notifies every participant that msg was deleted.
func (g *Gateway) PublishDeletion(ctx context.Context, msg models.Message) {
	conv, err := g.conversations.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		slog.Warn("deletion fan-out skipped", "message_id", msg.ID, "error", err)
		return
	}
	g.fanout(conv.ParticipantIDs, models.EventMessageDeleted, models.MessageDeletedEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
}

func (g *Gateway) broadcastPresence(userID int64, eventType models.EventType, p models.Presence) {
	targets := make([]int64, 0)
	for _, id := range g.registry.OnlineUsers() {
		if id != userID {
			targets = append(targets, id)
		}
	}
	g.fanout(targets, eventType, models.PresenceEvent{UserID: userID, LastSeenAt: p.LastSeenAt})
}

// fanout encodes the event once and enqueues it on every live connection of
// every target user.
func (g *Gateway) fanout(userIDs []int64, eventType models.EventType, data any) {
	if len(userIDs) == 0 {
		return
	}
	payload, err := encodeEvent(eventType, data)
	if err != nil {
		slog.Error("encode event failed", "event", eventType, "error", err)
		return
	}
	for _, userID := range userIDs {
		for _, c := range g.registry.HandlesFor(userID) {
			g.deliver(c, eventType, payload)
		}
	}
}

func (g *Gateway) sendError(c *Client, message string) {
	payload, err := encodeEvent(models.EventError, models.ErrorEvent{Message: message})
	if err != nil {
		return
	}
	g.deliver(c, models.EventError, payload)
}

func (g *Gateway) deliver(c *Client, eventType models.EventType, payload []byte) {
	if c.Deliver(payload) {
		observability.IncWSEvent("out", string(eventType))
		return
	}
	observability.IncWSDropped(string(eventType))
	slog.Debug("ws event dropped", "conn_id", c.ID(), "user_id", c.UserID(), "event", eventType)
}

// clientMessage maps domain errors to text safe to show to a client.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, repositories.ErrNotParticipant),
		errors.Is(err, repositories.ErrConversationNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, models.ErrInvalidMessage):
		return err.Error()
	default:
		return "internal error"
	}
}
