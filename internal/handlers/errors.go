package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/media"
	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

// respondError maps domain errors onto HTTP statuses. Client-caused errors
// keep their text; server-side failures are logged and reported generically.
func respondError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, models.ErrInvalidMessage),
		errors.Is(err, repositories.ErrSelfConversation),
		errors.Is(err, repositories.ErrInvalidConversation),
		errors.Is(err, media.ErrRejected):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, repositories.ErrNotParticipant),
		errors.Is(err, repositories.ErrNotOwner):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, repositories.ErrConversationNotFound):
		status, message = http.StatusNotFound, repositories.ErrConversationNotFound.Error()
	case errors.Is(err, repositories.ErrMessageNotFound):
		status, message = http.StatusNotFound, repositories.ErrMessageNotFound.Error()
	case errors.Is(err, repositories.ErrUserNotFound):
		status, message = http.StatusNotFound, repositories.ErrUserNotFound.Error()
	case errors.Is(err, media.ErrIngestFailed):
		status, message = http.StatusBadGateway, "media upload failed"
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", requestIDFromContext(c),
			"error", err,
		)
	}
	c.JSON(status, gin.H{"error": message})
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
