package models

import (
	"fmt"
	"time"
)

// RoomKind discriminates the two room topologies.
type RoomKind string

const (
	RoomKindGroup   RoomKind = "group"
	RoomKindPrivate RoomKind = "private"
)

// ParseRoomKind validates a room type taken from a URL or payload.
func ParseRoomKind(s string) (RoomKind, error) {
	switch RoomKind(s) {
	case RoomKindGroup:
		return RoomKindGroup, nil
	case RoomKindPrivate:
		return RoomKindPrivate, nil
	}
	return "", fmt.Errorf("invalid room type %q", s)
}

// RoomRef identifies exactly one room of exactly one kind. All lookup,
// persistence and fanout keys switch on Kind rather than raw strings.
type RoomRef struct {
	Kind RoomKind `json:"room_type"`
	ID   int      `json:"room_id"`
}

func (r RoomRef) String() string {
	return fmt.Sprintf("%s_%d", r.Kind, r.ID)
}

// GroupRoom is a named multi-member room.
type GroupRoom struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PrivateRoom is a pairwise room. Participants are stored in ascending
// id order so that at most one room exists per unordered pair.
type PrivateRoom struct {
	ID        int       `db:"id" json:"id"`
	User1ID   int       `db:"user1_id" json:"user1_id"`
	User2ID   int       `db:"user2_id" json:"user2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OtherUser returns the participant that is not current.
func (p PrivateRoom) OtherUser(current int) int {
	if p.User1ID == current {
		return p.User2ID
	}
	return p.User1ID
}
