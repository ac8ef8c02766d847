package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"rtchat-service/internal/chatlist"
	"rtchat-service/internal/models"
	"rtchat-service/internal/repositories"
	"rtchat-service/internal/telemetry"
	"rtchat-service/internal/ws"
)

// ChatHandler exposes the query-style interface of the chat core:
// chat list, history, read-state, room creation and message mutations.
type ChatHandler struct {
	rooms      repositories.RoomRepository
	messages   repositories.MessageRepository
	readState  repositories.ReadStateRepository
	users      repositories.UserRepository
	aggregator *chatlist.Aggregator
	publisher  *ws.Publisher
	audit      *telemetry.AuditEmitter
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, readState repositories.ReadStateRepository, users repositories.UserRepository, aggregator *chatlist.Aggregator, publisher *ws.Publisher, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		rooms:      rooms,
		messages:   messages,
		readState:  readState,
		users:      users,
		aggregator: aggregator,
		publisher:  publisher,
		audit:      audit,
	}
}

// ListChats returns the unified chat list for the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.aggregator.ChatList(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// FilterChats returns only group or only private chats.
func (h *ChatHandler) FilterChats(c *gin.Context) {
	userID := c.GetInt("userID")

	var kind models.RoomKind
	switch c.Param("filter_type") {
	case "groups":
		kind = models.RoomKindGroup
	case "private":
		kind = models.RoomKindPrivate
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter type"})
		return
	}

	chats, err := h.aggregator.Filter(c.Request.Context(), userID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetRoomMessages returns a room's history in ascending time order,
// with the header the client renders above it: the group name, or the
// other participant of a private room.
func (h *ChatHandler) GetRoomMessages(c *gin.Context) {
	ref, ok := parseRoomRef(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	room, err := h.roomHeader(c, ref, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}

	msgs, err := h.messages.ListRoomMessages(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := lo.Uniq(lo.Map(msgs, func(m models.Message, _ int) int { return m.SenderID }))
	senders, err := h.users.BulkUsers(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	senderByID := lo.SliceToMap(senders, func(u models.User) (int, models.User) { return u.ID, u })

	type messageResponse struct {
		ID              int    `json:"id"`
		SenderUsername  string `json:"sender_username"`
		SenderFirstName string `json:"sender_first_name"`
		Message         string `json:"message"`
		Timestamp       string `json:"timestamp"`
		Pinned          bool   `json:"pinned"`
		Deleted         bool   `json:"deleted"`
		ReplyTo         *int   `json:"reply_to,omitempty"`
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		sender := senderByID[m.SenderID]
		item := messageResponse{
			ID:              m.ID,
			SenderUsername:  sender.Username,
			SenderFirstName: sender.FirstName,
			Message:         m.Body,
			Timestamp:       m.CreatedAt.Format(time.RFC3339),
			Pinned:          m.Pinned,
			Deleted:         m.Deleted,
		}
		if m.ReplyTo.Valid {
			replyTo := int(m.ReplyTo.Int64)
			item.ReplyTo = &replyTo
		}
		resp = append(resp, item)
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "messages": resp})
}

// roomHeader resolves what the room is called from the caller's side.
// Membership was already checked, so any lookup failure is internal.
func (h *ChatHandler) roomHeader(c *gin.Context, ref models.RoomRef, userID int) (gin.H, error) {
	if ref.Kind == models.RoomKindGroup {
		group, err := h.rooms.GetGroupRoom(c.Request.Context(), ref.ID)
		if err != nil {
			return nil, err
		}
		return gin.H{"name": group.Name}, nil
	}

	private, err := h.rooms.GetPrivateRoom(c.Request.Context(), ref.ID)
	if err != nil {
		return nil, err
	}
	otherID := private.OtherUser(userID)
	other, err := h.users.GetUser(c.Request.Context(), otherID)
	if err != nil {
		return nil, err
	}
	return gin.H{"other_user_id": otherID, "other_username": other.Username}, nil
}

// PostRoomMessage persists a message and broadcasts it, sharing the
// websocket gateway's publish path.
func (h *ChatHandler) PostRoomMessage(c *gin.Context) {
	ref, ok := parseRoomRef(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
		ReplyTo *int   `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sender, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	msg, err := h.publisher.Publish(c.Request.Context(), ref, sender, req.Content, req.ReplyTo)
	if err != nil {
		switch {
		case errors.Is(err, ws.ErrEmptyMessage), errors.Is(err, ws.ErrMessageTooLong), errors.Is(err, repositories.ErrReplyNotInRoom):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkRead flips all unread messages in a room to read for the caller.
// Idempotent.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req struct {
		RoomID    int  `json:"room_id" binding:"required"`
		IsPrivate bool `json:"is_private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := models.RoomKindGroup
	if req.IsPrivate {
		kind = models.RoomKindPrivate
	}
	ref := models.RoomRef{Kind: kind, ID: req.RoomID}

	userID := c.GetInt("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	if _, err := h.readState.MarkRoomRead(c.Request.Context(), ref, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to mark read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StartPrivateChat creates or returns the private room for the caller
// and another user; the pair lookup is order-independent.
func (h *ChatHandler) StartPrivateChat(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if userID == req.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	if _, err := h.users.GetUser(c.Request.Context(), req.UserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	room, existed, err := h.rooms.CreateOrGetPrivateRoom(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "chat_id": room.ID, "exists": existed})
}

// CreateGroupChat creates a named group; the creator is always a member.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []int  `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.MemberIDs) > 0 {
		members, err := h.users.BulkUsers(c.Request.Context(), req.MemberIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate members"})
			return
		}
		if len(members) != len(lo.Uniq(req.MemberIDs)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown member"})
			return
		}
	}

	group, err := h.rooms.CreateGroupRoom(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, gin.H{"success": true, "group_id": group.ID})
}

// DeleteMessage soft-deletes a message (sender only) and notifies the
// room. The record is flagged, never removed.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	ref, messageID, ok := parseRoomMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.Room() != ref {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to room"})
		return
	}
	if msg.SenderID != userID {
		h.emitAudit(c, "ERROR", "not allowed to delete")
		c.JSON(http.StatusForbidden, gin.H{"error": "only sender may delete"})
		return
	}

	if err := h.messages.SoftDeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	h.publisher.PublishDeletion(ref, messageID)
	h.emitAudit(c, "INFO", "Message deleted")
	c.Status(http.StatusNoContent)
}

// TogglePin flips a message's pin flag.
func (h *ChatHandler) TogglePin(c *gin.Context) {
	ref, messageID, ok := parseRoomMessageIDs(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if !h.requireMember(c, ref, userID) {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.Room() != ref {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to room"})
		return
	}

	if err := h.messages.SetPinned(c.Request.Context(), messageID, !msg.Pinned); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update pin"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": !msg.Pinned})
}

// SearchUsers finds users by name fragment, excluding the caller.
func (h *ChatHandler) SearchUsers(c *gin.Context) {
	query := c.Query("q")
	if len(query) < 2 {
		c.JSON(http.StatusOK, gin.H{"users": []models.User{}})
		return
	}

	userID := c.GetInt("userID")
	users, err := h.users.SearchUsers(c.Request.Context(), query, userID, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}

	type userResponse struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
	}
	resp := lo.Map(users, func(u models.User, _ int) userResponse {
		return userResponse{ID: u.ID, Username: u.Username}
	})
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

// requireMember rejects the request when the room is missing or the
// caller is not a member; both look the same to the caller.
func (h *ChatHandler) requireMember(c *gin.Context, ref models.RoomRef, userID int) bool {
	member, err := h.rooms.IsRoomMember(c.Request.Context(), ref, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return false
	}
	return true
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestID(c), auditUserID(c))
}

func parseRoomRef(c *gin.Context) (models.RoomRef, bool) {
	kind, err := models.ParseRoomKind(c.Param("room_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room type"})
		return models.RoomRef{}, false
	}
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return models.RoomRef{}, false
	}
	return models.RoomRef{Kind: kind, ID: roomID}, true
}

func parseRoomMessageIDs(c *gin.Context) (models.RoomRef, int, bool) {
	ref, ok := parseRoomRef(c)
	if !ok {
		return models.RoomRef{}, 0, false
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return models.RoomRef{}, 0, false
	}
	return ref, messageID, true
}
