package ws

import (
	"context"
	"time"

	"realtime-chat/internal/observability"
)

// publishLifecycle emits a connection lifecycle event on the event bus.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string, rooms []int64) {
	observability.IncWSEvent("lifecycle", event)

	payload := map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
			"rooms":       rooms,
		},
		"identity": map[string]any{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, observability.RoutingKeyWSEvents,
		observability.NewEnvelope("ws_events", event, payload),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}
