package chatlist

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"rtchat-service/internal/models"
	"rtchat-service/internal/repositories"
)

// Aggregator builds the unified chat list: every group room the user
// belongs to and every private room they participate in, annotated with
// last activity and unread counts, merged and sorted in one list. It is
// read-only and shares no lock with the fanout path.
type Aggregator struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
}

// NewAggregator constructs an Aggregator.
func NewAggregator(rooms repositories.RoomRepository, messages repositories.MessageRepository, users repositories.UserRepository) *Aggregator {
	return &Aggregator{rooms: rooms, messages: messages, users: users}
}

// ChatList returns both room kinds in one list, most recent activity
// first. Rooms with no messages rank by creation time.
func (a *Aggregator) ChatList(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	groups, err := a.groupSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	privates, err := a.privateSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}

	all := append(groups, privates...)
	sortSummaries(all)
	return all, nil
}

// Filter returns the chat list restricted to one room kind, in the
// same order as ChatList.
func (a *Aggregator) Filter(ctx context.Context, userID int, kind models.RoomKind) ([]models.ChatSummary, error) {
	var summaries []models.ChatSummary
	var err error
	switch kind {
	case models.RoomKindGroup:
		summaries, err = a.groupSummaries(ctx, userID)
	case models.RoomKindPrivate:
		summaries, err = a.privateSummaries(ctx, userID)
	default:
		return nil, repositories.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	sortSummaries(summaries)
	return summaries, nil
}

func (a *Aggregator) groupSummaries(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	groups, err := a.rooms.GroupRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	activity, err := a.messages.GroupActivity(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(groups))
	for _, group := range groups {
		summaries = append(summaries, summarize(models.ChatSummary{
			ChatType: models.RoomKindGroup,
			ID:       group.ID,
			Name:     group.Name,
		}, activity[group.ID], group.CreatedAt))
	}
	return summaries, nil
}

func (a *Aggregator) privateSummaries(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	privates, err := a.rooms.PrivateRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	activity, err := a.messages.PrivateActivity(ctx, userID)
	if err != nil {
		return nil, err
	}

	otherIDs := lo.Uniq(lo.Map(privates, func(room models.PrivateRoom, _ int) int {
		return room.OtherUser(userID)
	}))
	others, err := a.users.BulkUsers(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	usernameByID := lo.SliceToMap(others, func(u models.User) (int, string) {
		return u.ID, u.Username
	})

	summaries := make([]models.ChatSummary, 0, len(privates))
	for _, room := range privates {
		otherID := room.OtherUser(userID)
		summaries = append(summaries, summarize(models.ChatSummary{
			ChatType:      models.RoomKindPrivate,
			ID:            room.ID,
			OtherUserID:   otherID,
			OtherUsername: usernameByID[otherID],
		}, activity[room.ID], room.CreatedAt))
	}
	return summaries, nil
}

// summarize fills the activity-derived fields, falling back to the
// room's creation time when it has no messages yet.
func summarize(base models.ChatSummary, activity repositories.RoomActivity, createdAt time.Time) models.ChatSummary {
	base.UnreadCount = activity.UnreadCount
	if activity.HasMessages {
		base.Timestamp = activity.LastAt
		body := activity.LastBody
		base.LastMessage = &body
	} else {
		base.Timestamp = createdAt
	}
	return base
}

// sortSummaries orders by most recent activity; rooms sharing a
// timestamp order by ascending id, then kind, so the list is stable.
func sortSummaries(summaries []models.ChatSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.ChatType < b.ChatType
	})
}
