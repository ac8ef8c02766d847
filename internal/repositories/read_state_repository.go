package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"rtchat-service/internal/models"
)

// ReadStateRepository flips unread messages to read for a user/room
// pair. The flag only ever moves false -> true and never touches the
// user's own messages.
type ReadStateRepository interface {
	MarkRoomRead(ctx context.Context, ref models.RoomRef, userID int) (int64, error)
}

// ReadStateRepo is a sqlx implementation of ReadStateRepository.
type ReadStateRepo struct {
	db *sqlx.DB
}

// NewReadStateRepo constructs a ReadStateRepo.
func NewReadStateRepo(db *sqlx.DB) *ReadStateRepo {
	return &ReadStateRepo{db: db}
}

// MarkRoomRead marks every unread message in the room not sent by the
// user as read. Idempotent: a second call flips nothing and reports 0.
func (r *ReadStateRepo) MarkRoomRead(ctx context.Context, ref models.RoomRef, userID int) (int64, error) {
	query := `UPDATE messages SET read = TRUE WHERE ` + roomColumn(ref.Kind) + `=$1 AND sender_id <> $2 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, ref.ID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
