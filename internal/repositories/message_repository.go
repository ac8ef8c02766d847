package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rtchat-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrReplyNotInRoom  = errors.New("reply target is not in this room")
	ErrNotSender       = errors.New("only the sender may do that")
)

// RoomActivity aggregates a room's message stats for one querying user.
type RoomActivity struct {
	LastAt      time.Time
	LastBody    string
	HasMessages bool
	UnreadCount int
}

// MessageRepository is the sole writer of message records.
type MessageRepository interface {
	CreateMessage(ctx context.Context, ref models.RoomRef, senderID int, body string, replyTo *int) (models.Message, error)
	ListRoomMessages(ctx context.Context, ref models.RoomRef) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int, userID int) error
	SetPinned(ctx context.Context, messageID int, pinned bool) error
	GroupActivity(ctx context.Context, userID int) (map[int]RoomActivity, error)
	PrivateActivity(ctx context.Context, userID int) (map[int]RoomActivity, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, room_type, group_id, private_id, body, created_at, read, pinned, reply_to, deleted, deleted_by`

// CreateMessage commits a message and returns it with the id and
// timestamp assigned by the database. The caller broadcasts only after
// this returns without error.
func (r *MessageRepo) CreateMessage(ctx context.Context, ref models.RoomRef, senderID int, body string, replyTo *int) (models.Message, error) {
	var groupID, privateID, replyRef sql.NullInt64
	switch ref.Kind {
	case models.RoomKindGroup:
		groupID = sql.NullInt64{Int64: int64(ref.ID), Valid: true}
	case models.RoomKindPrivate:
		privateID = sql.NullInt64{Int64: int64(ref.ID), Valid: true}
	default:
		return models.Message{}, ErrRoomNotFound
	}

	if replyTo != nil {
		target, err := r.GetMessage(ctx, *replyTo)
		if err != nil {
			return models.Message{}, ErrReplyNotInRoom
		}
		if target.Room() != ref {
			return models.Message{}, ErrReplyNotInRoom
		}
		replyRef = sql.NullInt64{Int64: int64(*replyTo), Valid: true}
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, room_type, group_id, private_id, body, reply_to)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		senderID, ref.Kind, groupID, privateID, body, replyRef).StructScan(&msg)
	if isForeignKeyViolation(err) {
		return models.Message{}, ErrRoomNotFound
	}
	return msg, err
}

// isForeignKeyViolation reports whether err is Postgres error 23503,
// raised when the referenced room row does not exist.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// ListRoomMessages returns the room history in ascending commit order.
// Soft-deleted messages are included; presentation filters them.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, ref models.RoomRef) ([]models.Message, error) {
	var msgs []models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + roomColumn(ref.Kind) + `=$1 ORDER BY created_at ASC, id ASC`
	err := r.db.SelectContext(ctx, &msgs, query, ref.ID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage flags a message deleted and records who deleted it.
// Rows are never physically removed.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int, userID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE, deleted_by = $2 WHERE id=$1 AND sender_id=$2`, messageID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SetPinned toggles the pin flag.
func (r *MessageRepo) SetPinned(ctx context.Context, messageID int, pinned bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET pinned = $2 WHERE id=$1`, messageID, pinned)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// GroupActivity returns last-activity and unread stats per group room,
// from the perspective of userID.
func (r *MessageRepo) GroupActivity(ctx context.Context, userID int) (map[int]RoomActivity, error) {
	return r.roomActivity(ctx, models.RoomKindGroup, userID)
}

// PrivateActivity returns last-activity and unread stats per private room,
// from the perspective of userID.
func (r *MessageRepo) PrivateActivity(ctx context.Context, userID int) (map[int]RoomActivity, error) {
	return r.roomActivity(ctx, models.RoomKindPrivate, userID)
}

func (r *MessageRepo) roomActivity(ctx context.Context, kind models.RoomKind, userID int) (map[int]RoomActivity, error) {
	col := roomColumn(kind)
	query := `SELECT ` + col + ` AS room_id,
            MAX(created_at) AS last_at,
            COUNT(*) FILTER (WHERE read = FALSE AND sender_id <> $1) AS unread_count
        FROM messages WHERE ` + col + ` IS NOT NULL GROUP BY ` + col

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[int]RoomActivity{}
	for rows.Next() {
		var roomID, unread int
		var lastAt time.Time
		if err := rows.Scan(&roomID, &lastAt, &unread); err != nil {
			return nil, err
		}
		result[roomID] = RoomActivity{LastAt: lastAt, HasMessages: true, UnreadCount: unread}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// most recent body per room, for the chat list preview
	lastQuery := `SELECT DISTINCT ON (` + col + `) ` + col + ` AS room_id, body
        FROM messages WHERE ` + col + ` IS NOT NULL
        ORDER BY ` + col + `, created_at DESC, id DESC`
	bodyRows, err := r.db.QueryxContext(ctx, lastQuery)
	if err != nil {
		return nil, err
	}
	defer bodyRows.Close()

	for bodyRows.Next() {
		var roomID int
		var body string
		if err := bodyRows.Scan(&roomID, &body); err != nil {
			return nil, err
		}
		activity := result[roomID]
		activity.LastBody = body
		result[roomID] = activity
	}
	return result, bodyRows.Err()
}

func roomColumn(kind models.RoomKind) string {
	if kind == models.RoomKindGroup {
		return "group_id"
	}
	return "private_id"
}
