package models

import (
	"database/sql"
	"time"
)

// Message is a persisted chat message. Exactly one of GroupID/PrivateID
// is set, matching RoomType; the schema enforces this with a CHECK.
type Message struct {
	ID        int           `db:"id" json:"id"`
	SenderID  int           `db:"sender_id" json:"sender_id"`
	RoomType  RoomKind      `db:"room_type" json:"room_type"`
	GroupID   sql.NullInt64 `db:"group_id" json:"group_id,omitempty"`
	PrivateID sql.NullInt64 `db:"private_id" json:"private_id,omitempty"`
	Body      string        `db:"body" json:"body"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	Read      bool          `db:"read" json:"read"`
	Pinned    bool          `db:"pinned" json:"pinned"`
	ReplyTo   sql.NullInt64 `db:"reply_to" json:"reply_to,omitempty"`
	Deleted   bool          `db:"deleted" json:"deleted"`
	DeletedBy sql.NullInt64 `db:"deleted_by" json:"deleted_by,omitempty"`
}

// Room returns the reference of the room the message belongs to.
func (m Message) Room() RoomRef {
	if m.RoomType == RoomKindGroup {
		return RoomRef{Kind: RoomKindGroup, ID: int(m.GroupID.Int64)}
	}
	return RoomRef{Kind: RoomKindPrivate, ID: int(m.PrivateID.Int64)}
}

// ChatEvent is the outbound websocket frame.
type ChatEvent struct {
	Type            string   `json:"type"`
	Message         string   `json:"message,omitempty"`
	SenderID        int      `json:"sender_id,omitempty"`
	SenderUsername  string   `json:"sender_username,omitempty"`
	SenderFirstName string   `json:"sender_first_name,omitempty"`
	Timestamp       string   `json:"timestamp,omitempty"`
	RoomType        RoomKind `json:"room_type,omitempty"`
	MessageID       int      `json:"message_id,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Event types carried in ChatEvent.Type.
const (
	EventChatMessage    = "chat_message"
	EventMessageDeleted = "message_deleted"
	EventError          = "error"
)

// InboundFrame is the payload clients send over the websocket.
type InboundFrame struct {
	Message string `json:"message"`
	ReplyTo *int   `json:"reply_to,omitempty"`
}
