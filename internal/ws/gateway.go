package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"rtchat-service/internal/auth"
	"rtchat-service/internal/models"
	"rtchat-service/internal/observability"
	"rtchat-service/internal/repositories"
)

// Gateway owns the lifecycle of one websocket connection per request:
// authenticate, authorize against the room, subscribe, pump frames, and
// always deregister on the way out.
type Gateway struct {
	hub       Broker
	publisher *Publisher
	rooms     repositories.RoomRepository
	users     repositories.UserRepository
	readState repositories.ReadStateRepository
	verifier  *auth.Verifier
}

// NewGateway constructs a Gateway.
func NewGateway(hub Broker, publisher *Publisher, rooms repositories.RoomRepository, users repositories.UserRepository, readState repositories.ReadStateRepository, verifier *auth.Verifier) *Gateway {
	return &Gateway{
		hub:       hub,
		publisher: publisher,
		rooms:     rooms,
		users:     users,
		readState: readState,
		verifier:  verifier,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle serves GET /ws/chat/:room_type/:room_id. Unauthorized and
// unauthorized-room attempts are rejected before the upgrade, so no
// data is ever written to a socket for them.
func (g *Gateway) Handle(c *gin.Context) {
	kind, err := models.ParseRoomKind(c.Param("room_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room type"})
		return
	}
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	ref := models.RoomRef{Kind: kind, ID: roomID}

	ctx, span := otel.Tracer("rtchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := g.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := g.rooms.IsRoomMember(ctx, ref, userID)
	if err != nil || !member {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	sender, err := g.users.GetUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		IP:          c.ClientIP(),
		RequestID:   c.GetHeader("X-Request-ID"),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)
	key := KeyFor(ref)

	g.hub.Join(key, client)
	go client.WritePump()

	// The request context dies with this handler; the session outlives it.
	sessionCtx := context.Background()

	// Entering a room marks its history read for this user.
	if _, err := g.readState.MarkRoomRead(sessionCtx, ref, userID); err != nil {
		log.Printf("ws: mark read on open: %v", err)
	}

	observability.IncWSActive(string(kind))
	observability.IncWSEvent(string(kind), "ws_connect")
	g.publishLifecycleEvent(sessionCtx, ref, client, "ws_connect", "")

	go g.readLoop(sessionCtx, ref, key, client, sender)
}

// readLoop pumps inbound frames until the connection drops. Every exit
// path leaves the room before the socket is released.
func (g *Gateway) readLoop(ctx context.Context, ref models.RoomRef, key RoomKey, client *Client, sender models.User) {
	var closeReason string
	defer func() {
		g.hub.Leave(key, client)
		client.Close()
		observability.DecWSActive(string(ref.Kind))
		observability.IncWSEvent(string(ref.Kind), "ws_disconnect")
		g.publishLifecycleEvent(ctx, ref, client, "ws_disconnect", closeReason)
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(string(ref.Kind), "ws_error")
				g.publishLifecycleEvent(ctx, ref, client, "ws_error", closeReason)
			}
			return
		}

		var frame models.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.sendError(client, "invalid frame")
			continue
		}

		if _, err := g.publisher.Publish(ctx, ref, sender, frame.Message, frame.ReplyTo); err != nil {
			g.sendError(client, publishErrorText(err))
		}
	}
}

// sendError reports a failure to the offending sender only.
func (g *Gateway) sendError(client *Client, text string) {
	payload, err := json.Marshal(models.ChatEvent{Type: models.EventError, Error: text})
	if err != nil {
		return
	}
	client.Enqueue(payload)
}

func publishErrorText(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, ErrMessageTooLong):
		return "message is too long"
	case errors.Is(err, repositories.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, repositories.ErrReplyNotInRoom):
		return "reply target is not in this room"
	default:
		return "failed to send message"
	}
}

func (g *Gateway) publishLifecycleEvent(ctx context.Context, ref models.RoomRef, client *Client, event, reason string) {
	payload := observability.WSEventPayload{
		RoomType: string(ref.Kind),
		RoomID:   ref.ID,
		Event:    event,
		ConnID:   client.Info.ConnID,
		UserID:   client.Info.UserID,
		Reason:   reason,
	}
	if event != "ws_connect" {
		payload.DurationMS = time.Since(client.Info.ConnectedAt).Milliseconds()
	}

	observability.EmitWSEvent(ctx, payload, client.Info.RequestID, client.Info.TraceID)
}

func (g *Gateway) validateToken(header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return g.verifier.ValidateToken(parts[1])
	}
	return 0, auth.ErrInvalidToken
}
