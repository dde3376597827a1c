package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/models"
)

type PresenceReader interface {
	Get(ctx context.Context, userID int64) (models.Presence, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	ListUsers(ctx context.Context, userIDs []int64) ([]models.User, error)
}

// OnlineLister reports users holding at least one live connection.
type OnlineLister interface {
	OnlineUsers() []int64
}

// PresenceHandler exposes the durable presence of a user and the users
// connected right now.
type PresenceHandler struct {
	users    UserLookup
	presence PresenceReader
	online   OnlineLister
}

func NewPresenceHandler(users UserLookup, presence PresenceReader, online OnlineLister) *PresenceHandler {
	return &PresenceHandler{users: users, presence: presence, online: online}
}

// GetPresence returns whether a user is online and when they were last seen.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}

	if _, err := h.users.GetUser(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	p, err := h.presence.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListOnline returns the profiles of connected users other than the caller.
func (h *PresenceHandler) ListOnline(c *gin.Context) {
	callerID := userIDFromContext(c)
	ids := make([]int64, 0)
	for _, id := range h.online.OnlineUsers() {
		if id != callerID {
			ids = append(ids, id)
		}
	}

	users, err := h.users.ListUsers(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
