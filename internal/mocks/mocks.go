package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"rtchat-service/internal/models"
	"rtchat-service/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateGroupRoom(ctx context.Context, creatorID int, name string, memberIDs []int) (models.GroupRoom, error) {
	args := m.Called(ctx, creatorID, name, memberIDs)
	var group models.GroupRoom
	if val := args.Get(0); val != nil {
		group = val.(models.GroupRoom)
	}
	return group, args.Error(1)
}

func (m *RoomRepositoryMock) CreateOrGetPrivateRoom(ctx context.Context, userID int, otherID int) (models.PrivateRoom, bool, error) {
	args := m.Called(ctx, userID, otherID)
	var room models.PrivateRoom
	if val := args.Get(0); val != nil {
		room = val.(models.PrivateRoom)
	}
	return room, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) GetGroupRoom(ctx context.Context, groupID int) (models.GroupRoom, error) {
	args := m.Called(ctx, groupID)
	var group models.GroupRoom
	if val := args.Get(0); val != nil {
		group = val.(models.GroupRoom)
	}
	return group, args.Error(1)
}

func (m *RoomRepositoryMock) GetPrivateRoom(ctx context.Context, privateID int) (models.PrivateRoom, error) {
	args := m.Called(ctx, privateID)
	var room models.PrivateRoom
	if val := args.Get(0); val != nil {
		room = val.(models.PrivateRoom)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) IsRoomMember(ctx context.Context, ref models.RoomRef, userID int) (bool, error) {
	args := m.Called(ctx, ref, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) GroupRoomsForUser(ctx context.Context, userID int) ([]models.GroupRoom, error) {
	args := m.Called(ctx, userID)
	var groups []models.GroupRoom
	if val := args.Get(0); val != nil {
		groups = val.([]models.GroupRoom)
	}
	return groups, args.Error(1)
}

func (m *RoomRepositoryMock) PrivateRoomsForUser(ctx context.Context, userID int) ([]models.PrivateRoom, error) {
	args := m.Called(ctx, userID)
	var rooms []models.PrivateRoom
	if val := args.Get(0); val != nil {
		rooms = val.([]models.PrivateRoom)
	}
	return rooms, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, ref models.RoomRef, senderID int, body string, replyTo *int) (models.Message, error) {
	args := m.Called(ctx, ref, senderID, body, replyTo)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRoomMessages(ctx context.Context, ref models.RoomRef) ([]models.Message, error) {
	args := m.Called(ctx, ref)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int, userID int) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetPinned(ctx context.Context, messageID int, pinned bool) error {
	args := m.Called(ctx, messageID, pinned)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GroupActivity(ctx context.Context, userID int) (map[int]repositories.RoomActivity, error) {
	args := m.Called(ctx, userID)
	var activity map[int]repositories.RoomActivity
	if val := args.Get(0); val != nil {
		activity = val.(map[int]repositories.RoomActivity)
	}
	return activity, args.Error(1)
}

func (m *MessageRepositoryMock) PrivateActivity(ctx context.Context, userID int) (map[int]repositories.RoomActivity, error) {
	args := m.Called(ctx, userID)
	var activity map[int]repositories.RoomActivity
	if val := args.Get(0); val != nil {
		activity = val.(map[int]repositories.RoomActivity)
	}
	return activity, args.Error(1)
}

type ReadStateRepositoryMock struct {
	mock.Mock
}

func (m *ReadStateRepositoryMock) MarkRoomRead(ctx context.Context, ref models.RoomRef, userID int) (int64, error) {
	args := m.Called(ctx, ref, userID)
	return args.Get(0).(int64), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, query string, excludeID int, limit int) ([]models.User, error) {
	args := m.Called(ctx, query, excludeID, limit)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ReadStateRepository = (*ReadStateRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
