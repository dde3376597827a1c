package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"realtime-chat/internal/observability"
	"realtime-chat/internal/ratelimit"
	"realtime-chat/internal/telemetry"
)

const DefaultAuthTimeout = 5 * time.Second

type HandlerConfig struct {
	AuthTimeout    time.Duration
	SendBuffer     int
	ConnectLimiter ratelimit.Limiter
	Audit          *telemetry.AuditEmitter
}

// Handler authenticates and upgrades websocket connections for the gateway.
type Handler struct {
	gateway  *Gateway
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

func NewHandler(gateway *Gateway, cfg HandlerConfig) *Handler {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.ConnectLimiter == nil {
		cfg.ConnectLimiter = ratelimit.Unlimited{}
	}
	return &Handler{
		gateway: gateway,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.AuthTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates before upgrading; a rejected handshake gets a plain
// HTTP error and no registry entry. Presence is announced only once the
// upgrade succeeds.
func (h *Handler) Handle(c *gin.Context) {
	ip := observability.IPFromRequest(c.Request)
	if !h.cfg.ConnectLimiter.Allow("ip:" + ip) {
		observability.IncRateLimited("ws_connect")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	ctx, span := otel.Tracer("realtime-chat/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	requestID := c.GetString(observability.RequestIDKey)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	client := NewClient(ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          ip,
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}, h.cfg.SendBuffer)

	authCtx, cancel := context.WithTimeout(ctx, h.cfg.AuthTimeout)
	err := h.gateway.Authenticate(authCtx, client, tokenFromRequest(c))
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake rejected")
		publishLifecycle(ctx, client.Info(), "ws_auth_failed", err.Error(), nil)
		if errors.Is(err, ErrAuthentication) || errors.Is(err, context.DeadlineExceeded) {
			h.cfg.Audit.Emit(ctx, "ws_auth_failed", telemetry.LevelWarn, "websocket authentication rejected", requestID, 0)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	span.SetAttributes(attribute.Int64("user.id", client.UserID()), attribute.String("ws.conn_id", client.ID()))

	sessionCtx := context.WithoutCancel(ctx)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.gateway.Disconnect(sessionCtx, client)
		return
	}
	h.gateway.Announce(sessionCtx, client)

	info := client.Info()
	publishLifecycle(sessionCtx, info, "ws_connect", "", h.gateway.Registry().Rooms(client))

	go client.writePump(conn)
	go func() {
		readErr := client.readPump(conn, func(raw []byte) {
			h.gateway.Dispatch(sessionCtx, client, raw)
		})
		rooms := h.gateway.Registry().Rooms(client)
		h.gateway.Disconnect(sessionCtx, client)

		reason := ""
		if readErr != nil {
			reason = readErr.Error()
		}
		if readErr != nil && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			publishLifecycle(sessionCtx, info, "ws_error", reason, rooms)
		}
		publishLifecycle(sessionCtx, info, "ws_disconnect", reason, rooms)
	}()
}

// tokenFromRequest reads the bearer token from the Authorization header or
// the token query parameter, for browsers that cannot set headers.
func tokenFromRequest(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(c.Query("token"))
}
