package models

import "time"

// ChatSummary is one row of the unified chat list. Group rooms carry
// Name, private rooms carry OtherUsername.
type ChatSummary struct {
	ChatType      RoomKind  `json:"chat_type"`
	ID            int       `json:"id"`
	Name          string    `json:"name,omitempty"`
	OtherUserID   int       `json:"other_user_id,omitempty"`
	OtherUsername string    `json:"other_username,omitempty"`
	LastMessage   *string   `json:"last_message"`
	UnreadCount   int       `json:"unread_count"`
	Timestamp     time.Time `json:"timestamp"`
}
