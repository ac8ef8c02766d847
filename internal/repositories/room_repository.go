package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"rtchat-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts group and private room persistence.
type RoomRepository interface {
	CreateGroupRoom(ctx context.Context, creatorID int, name string, memberIDs []int) (models.GroupRoom, error)
	CreateOrGetPrivateRoom(ctx context.Context, userID int, otherID int) (models.PrivateRoom, bool, error)
	GetGroupRoom(ctx context.Context, groupID int) (models.GroupRoom, error)
	GetPrivateRoom(ctx context.Context, privateID int) (models.PrivateRoom, error)
	IsRoomMember(ctx context.Context, ref models.RoomRef, userID int) (bool, error)
	GroupRoomsForUser(ctx context.Context, userID int) ([]models.GroupRoom, error)
	PrivateRoomsForUser(ctx context.Context, userID int) ([]models.PrivateRoom, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// normalizePair orders an unordered user pair so {A,B} and {B,A} hit
// the same private_rooms row.
func normalizePair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// CreateGroupRoom creates a group and its membership rows atomically.
// The creator is always a member.
func (r *RoomRepo) CreateGroupRoom(ctx context.Context, creatorID int, name string, memberIDs []int) (models.GroupRoom, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.GroupRoom{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.GroupRoom
	if err = tx.QueryRowxContext(ctx, `INSERT INTO group_rooms (name) VALUES ($1) RETURNING id, name, created_at`, name).
		Scan(&group.ID, &group.Name, &group.CreatedAt); err != nil {
		return models.GroupRoom{}, err
	}

	memberSet := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	for id := range memberSet {
		if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, id); err != nil {
			return models.GroupRoom{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.GroupRoom{}, err
	}
	return group, nil
}

// CreateOrGetPrivateRoom returns the room for the unordered pair,
// creating it when absent. The second return reports whether the room
// already existed.
func (r *RoomRepo) CreateOrGetPrivateRoom(ctx context.Context, userID int, otherID int) (models.PrivateRoom, bool, error) {
	if userID == otherID {
		return models.PrivateRoom{}, false, errors.New("cannot open a private room with yourself")
	}
	user1, user2 := normalizePair(userID, otherID)

	var room models.PrivateRoom
	err := r.db.GetContext(ctx, &room, `SELECT id, user1_id, user2_id, created_at FROM private_rooms WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.PrivateRoom{}, false, err
	}

	err = r.db.QueryRowxContext(ctx, `INSERT INTO private_rooms (user1_id, user2_id) VALUES ($1, $2) RETURNING id, user1_id, user2_id, created_at`, user1, user2).
		Scan(&room.ID, &room.User1ID, &room.User2ID, &room.CreatedAt)
	if err != nil {
		return models.PrivateRoom{}, false, err
	}
	return room, false, nil
}

// GetGroupRoom fetches a group room by id.
func (r *RoomRepo) GetGroupRoom(ctx context.Context, groupID int) (models.GroupRoom, error) {
	var group models.GroupRoom
	err := r.db.GetContext(ctx, &group, `SELECT id, name, created_at FROM group_rooms WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupRoom{}, ErrRoomNotFound
	}
	return group, err
}

// GetPrivateRoom fetches a private room by id.
func (r *RoomRepo) GetPrivateRoom(ctx context.Context, privateID int) (models.PrivateRoom, error) {
	var room models.PrivateRoom
	err := r.db.GetContext(ctx, &room, `SELECT id, user1_id, user2_id, created_at FROM private_rooms WHERE id=$1`, privateID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PrivateRoom{}, ErrRoomNotFound
	}
	return room, err
}

// IsRoomMember reports whether the user may read and write the room.
func (r *RoomRepo) IsRoomMember(ctx context.Context, ref models.RoomRef, userID int) (bool, error) {
	var exists bool
	var err error
	switch ref.Kind {
	case models.RoomKindGroup:
		err = r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, ref.ID, userID)
	case models.RoomKindPrivate:
		err = r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM private_rooms WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, ref.ID, userID)
	default:
		return false, ErrRoomNotFound
	}
	return exists, err
}

// GroupRoomsForUser returns groups that include the user.
func (r *RoomRepo) GroupRoomsForUser(ctx context.Context, userID int) ([]models.GroupRoom, error) {
	var groups []models.GroupRoom
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.created_at FROM group_rooms g
        INNER JOIN group_members gm ON gm.group_id = g.id WHERE gm.user_id=$1`, userID)
	return groups, err
}

// PrivateRoomsForUser returns private rooms the user participates in.
func (r *RoomRepo) PrivateRoomsForUser(ctx context.Context, userID int) ([]models.PrivateRoom, error) {
	var rooms []models.PrivateRoom
	err := r.db.SelectContext(ctx, &rooms, `SELECT id, user1_id, user2_id, created_at FROM private_rooms WHERE user1_id=$1 OR user2_id=$1`, userID)
	return rooms, err
}
