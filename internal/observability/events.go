package observability

import "context"

// EventEnvelope wraps every event shipped to the bus.
type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// WSEventPayload describes one websocket lifecycle event: a connection
// opening, closing, or failing on a room.
type WSEventPayload struct {
	RoomType   string `json:"room_type"`
	RoomID     int    `json:"room_id"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	UserID     int    `json:"user_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

// EmitWSEvent ships a websocket lifecycle event, routed per room kind
// so consumers can subscribe to group and private streams separately.
// A no-op without a bus; publish failures are counted, never returned.
func EmitWSEvent(ctx context.Context, payload WSEventPayload, requestID, traceID string) {
	if bus == nil {
		return
	}

	routingKey := "ws_events.private"
	if payload.RoomType == "group" {
		routingKey = "ws_events.groups"
	}

	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}

	envelope := EventEnvelope{
		EventType: "ws_events",
		EventName: payload.Event,
		Payload:   payload,
	}
	if err := bus.PublishJSON(ctx, routingKey, envelope, headers); err != nil {
		IncAMQPPublishError()
	}
}
