package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"realtime-chat/internal/observability"
)

const userIDContextKey = "userID"

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(observability.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDKey, requestID)
	return requestID
}

// userIDFromContext returns the authenticated caller, or 0 when the route is
// not behind the auth middleware.
func userIDFromContext(c *gin.Context) int64 {
	return c.GetInt64(userIDContextKey)
}
