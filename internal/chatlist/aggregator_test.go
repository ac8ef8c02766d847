package chatlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtchat-service/internal/mocks"
	"rtchat-service/internal/models"
	"rtchat-service/internal/repositories"
)

type aggregatorFixture struct {
	aggregator  *Aggregator
	roomRepo    *mocks.RoomRepositoryMock
	messageRepo *mocks.MessageRepositoryMock
	userRepo    *mocks.UserRepositoryMock
}

func newAggregatorFixture() *aggregatorFixture {
	f := &aggregatorFixture{
		roomRepo:    new(mocks.RoomRepositoryMock),
		messageRepo: new(mocks.MessageRepositoryMock),
		userRepo:    new(mocks.UserRepositoryMock),
	}
	f.aggregator = NewAggregator(f.roomRepo, f.messageRepo, f.userRepo)
	return f
}

func activityAt(at time.Time, body string, unread int) repositories.RoomActivity {
	return repositories.RoomActivity{LastAt: at, LastBody: body, HasMessages: true, UnreadCount: unread}
}

func TestChatListOrdersByLastActivity(t *testing.T) {
	f := newAggregatorFixture()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	t1 := base.Add(time.Minute)
	t2 := base.Add(2 * time.Minute)

	f.roomRepo.On("GroupRoomsForUser", mock.Anything, 1).
		Return([]models.GroupRoom{{ID: 1, Name: "devs", CreatedAt: base}}, nil)
	f.roomRepo.On("PrivateRoomsForUser", mock.Anything, 1).
		Return([]models.PrivateRoom{{ID: 5, User1ID: 1, User2ID: 2, CreatedAt: base}}, nil)
	f.messageRepo.On("GroupActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{1: activityAt(t1, "group msg", 0)}, nil)
	f.messageRepo.On("PrivateActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{5: activityAt(t2, "private msg", 2)}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{2}).
		Return([]models.User{{ID: 2, Username: "bob"}}, nil)

	list, err := f.aggregator.ChatList(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// the private room has the newer message, so it comes first
	assert.Equal(t, models.RoomKindPrivate, list[0].ChatType)
	assert.Equal(t, 5, list[0].ID)
	assert.Equal(t, "bob", list[0].OtherUsername)
	assert.Equal(t, 2, list[0].OtherUserID)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "private msg", *list[0].LastMessage)
	assert.Equal(t, 2, list[0].UnreadCount)

	assert.Equal(t, models.RoomKindGroup, list[1].ChatType)
	assert.Equal(t, "devs", list[1].Name)
	assert.Equal(t, 0, list[1].UnreadCount)
}

func TestChatListFallsBackToCreationTime(t *testing.T) {
	f := newAggregatorFixture()
	oldCreate := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newCreate := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	f.roomRepo.On("GroupRoomsForUser", mock.Anything, 1).
		Return([]models.GroupRoom{
			{ID: 1, Name: "old", CreatedAt: oldCreate},
			{ID: 2, Name: "new", CreatedAt: newCreate},
		}, nil)
	f.roomRepo.On("PrivateRoomsForUser", mock.Anything, 1).
		Return([]models.PrivateRoom{}, nil)
	f.messageRepo.On("GroupActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{}, nil)
	f.messageRepo.On("PrivateActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{}).
		Return([]models.User{}, nil)

	list, err := f.aggregator.ChatList(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "new", list[0].Name)
	assert.Nil(t, list[0].LastMessage)
	assert.Equal(t, newCreate, list[0].Timestamp)
	assert.Equal(t, "old", list[1].Name)
}

func TestChatListBreaksTimestampTiesByID(t *testing.T) {
	f := newAggregatorFixture()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	f.roomRepo.On("GroupRoomsForUser", mock.Anything, 1).
		Return([]models.GroupRoom{
			{ID: 9, Name: "nine", CreatedAt: at},
			{ID: 3, Name: "three", CreatedAt: at},
		}, nil)
	f.roomRepo.On("PrivateRoomsForUser", mock.Anything, 1).
		Return([]models.PrivateRoom{}, nil)
	f.messageRepo.On("GroupActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{}, nil)
	f.messageRepo.On("PrivateActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{}).
		Return([]models.User{}, nil)

	list, err := f.aggregator.ChatList(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].ID)
	assert.Equal(t, 9, list[1].ID)
}

func TestFilterReturnsOnlyRequestedKind(t *testing.T) {
	f := newAggregatorFixture()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	f.roomRepo.On("PrivateRoomsForUser", mock.Anything, 1).
		Return([]models.PrivateRoom{{ID: 5, User1ID: 1, User2ID: 2, CreatedAt: at}}, nil)
	f.messageRepo.On("PrivateActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{5: activityAt(at, "hey", 1)}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{2}).
		Return([]models.User{{ID: 2, Username: "bob"}}, nil)

	list, err := f.aggregator.Filter(context.Background(), 1, models.RoomKindPrivate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.RoomKindPrivate, list[0].ChatType)

	f.roomRepo.AssertNotCalled(t, "GroupRoomsForUser", mock.Anything, mock.Anything)
}

func TestPrivateSummariesDeduplicateUserLookups(t *testing.T) {
	f := newAggregatorFixture()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// user 1 sees user 2 from both sides of the pair ordering
	f.roomRepo.On("PrivateRoomsForUser", mock.Anything, 2).
		Return([]models.PrivateRoom{
			{ID: 1, User1ID: 1, User2ID: 2, CreatedAt: at},
			{ID: 2, User1ID: 2, User2ID: 3, CreatedAt: at},
		}, nil)
	f.messageRepo.On("PrivateActivity", mock.Anything, 2).
		Return(map[int]repositories.RoomActivity{}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{1, 3}).
		Return([]models.User{{ID: 1, Username: "alice"}, {ID: 3, Username: "carol"}}, nil)

	list, err := f.aggregator.Filter(context.Background(), 2, models.RoomKindPrivate)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].OtherUsername)
	assert.Equal(t, "carol", list[1].OtherUsername)
}
