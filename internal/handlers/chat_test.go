package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtchat-service/internal/chatlist"
	"rtchat-service/internal/mocks"
	"rtchat-service/internal/models"
	"rtchat-service/internal/repositories"
	"rtchat-service/internal/ws"
)

type handlerFixture struct {
	router      *gin.Engine
	roomRepo    *mocks.RoomRepositoryMock
	messageRepo *mocks.MessageRepositoryMock
	readRepo    *mocks.ReadStateRepositoryMock
	userRepo    *mocks.UserRepositoryMock
}

func newHandlerFixture(userID int) *handlerFixture {
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		roomRepo:    new(mocks.RoomRepositoryMock),
		messageRepo: new(mocks.MessageRepositoryMock),
		readRepo:    new(mocks.ReadStateRepositoryMock),
		userRepo:    new(mocks.UserRepositoryMock),
	}

	aggregator := chatlist.NewAggregator(f.roomRepo, f.messageRepo, f.userRepo)
	publisher := ws.NewPublisher(ws.NewHub(), f.messageRepo)
	handler := NewChatHandler(f.roomRepo, f.messageRepo, f.readRepo, f.userRepo, aggregator, publisher, nil)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})

	f.router.GET("/chats", handler.ListChats)
	f.router.GET("/chats/filter/:filter_type", handler.FilterChats)
	f.router.POST("/chats/read", handler.MarkRead)
	f.router.POST("/chats/private", handler.StartPrivateChat)
	f.router.POST("/chats/group", handler.CreateGroupChat)
	f.router.GET("/chats/:room_type/:room_id/messages", handler.GetRoomMessages)
	f.router.POST("/chats/:room_type/:room_id/messages", handler.PostRoomMessage)
	f.router.DELETE("/chats/:room_type/:room_id/messages/:message_id", handler.DeleteMessage)
	f.router.POST("/chats/:room_type/:room_id/messages/:message_id/pin", handler.TogglePin)
	f.router.GET("/users/search", handler.SearchUsers)

	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListChats(t *testing.T) {
	f := newHandlerFixture(1)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	f.roomRepo.On("GroupRoomsForUser", mock.Anything, 1).
		Return([]models.GroupRoom{{ID: 1, Name: "devs", CreatedAt: at}}, nil)
	f.roomRepo.On("PrivateRoomsForUser", mock.Anything, 1).
		Return([]models.PrivateRoom{}, nil)
	f.messageRepo.On("GroupActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{}, nil)
	f.messageRepo.On("PrivateActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{}).
		Return([]models.User{}, nil)

	rec := f.do(t, http.MethodGet, "/chats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	chats := body["chats"].([]any)
	require.Len(t, chats, 1)
	first := chats[0].(map[string]any)
	assert.Equal(t, "devs", first["name"])
	assert.Equal(t, "group", first["chat_type"])
}

func TestFilterChatsRejectsUnknownFilter(t *testing.T) {
	f := newHandlerFixture(1)
	rec := f.do(t, http.MethodGet, "/chats/filter/archived", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilterChatsGroupsOnly(t *testing.T) {
	f := newHandlerFixture(1)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	f.roomRepo.On("GroupRoomsForUser", mock.Anything, 1).
		Return([]models.GroupRoom{{ID: 2, Name: "ops", CreatedAt: at}}, nil)
	f.messageRepo.On("GroupActivity", mock.Anything, 1).
		Return(map[int]repositories.RoomActivity{}, nil)

	rec := f.do(t, http.MethodGet, "/chats/filter/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f.roomRepo.AssertNotCalled(t, "PrivateRoomsForUser", mock.Anything, mock.Anything)
}

func TestMarkRead(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindPrivate, ID: 4}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.readRepo.On("MarkRoomRead", mock.Anything, ref, 1).Return(int64(3), nil)

	rec := f.do(t, http.MethodPost, "/chats/read", gin.H{"room_id": 4, "is_private": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 4}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.readRepo.On("MarkRoomRead", mock.Anything, ref, 1).Return(int64(2), nil).Once()
	f.readRepo.On("MarkRoomRead", mock.Anything, ref, 1).Return(int64(0), nil)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/chats/read", gin.H{"room_id": 4})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["success"])
	}
}

func TestMarkReadNonMember(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 9}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(false, nil)

	rec := f.do(t, http.MethodPost, "/chats/read", gin.H{"room_id": 9})
	require.Equal(t, http.StatusNotFound, rec.Code)
	f.readRepo.AssertNotCalled(t, "MarkRoomRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartPrivateChatCreatesRoom(t *testing.T) {
	f := newHandlerFixture(1)

	f.userRepo.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil)
	f.roomRepo.On("CreateOrGetPrivateRoom", mock.Anything, 1, 2).
		Return(models.PrivateRoom{ID: 11, User1ID: 1, User2ID: 2}, false, nil)

	rec := f.do(t, http.MethodPost, "/chats/private", gin.H{"user_id": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(11), body["chat_id"])
	assert.Equal(t, false, body["exists"])
}

func TestStartPrivateChatReturnsExistingRoom(t *testing.T) {
	f := newHandlerFixture(2)

	f.userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil)
	f.roomRepo.On("CreateOrGetPrivateRoom", mock.Anything, 2, 1).
		Return(models.PrivateRoom{ID: 11, User1ID: 1, User2ID: 2}, true, nil)

	rec := f.do(t, http.MethodPost, "/chats/private", gin.H{"user_id": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(11), body["chat_id"])
	assert.Equal(t, true, body["exists"])
}

func TestStartPrivateChatWithSelf(t *testing.T) {
	f := newHandlerFixture(1)
	rec := f.do(t, http.MethodPost, "/chats/private", gin.H{"user_id": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartPrivateChatUnknownUser(t *testing.T) {
	f := newHandlerFixture(1)
	f.userRepo.On("GetUser", mock.Anything, 99).Return(nil, repositories.ErrUserNotFound)

	rec := f.do(t, http.MethodPost, "/chats/private", gin.H{"user_id": 99})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGroupChat(t *testing.T) {
	f := newHandlerFixture(1)

	f.userRepo.On("BulkUsers", mock.Anything, []int{2, 3}).
		Return([]models.User{{ID: 2}, {ID: 3}}, nil)
	f.roomRepo.On("CreateGroupRoom", mock.Anything, 1, "devs", []int{2, 3}).
		Return(models.GroupRoom{ID: 7, Name: "devs"}, nil)

	rec := f.do(t, http.MethodPost, "/chats/group", gin.H{"name": "devs", "members": []int{2, 3}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(7), decodeBody(t, rec)["group_id"])
}

func TestCreateGroupChatUnknownMember(t *testing.T) {
	f := newHandlerFixture(1)

	f.userRepo.On("BulkUsers", mock.Anything, []int{2, 99}).
		Return([]models.User{{ID: 2}}, nil)

	rec := f.do(t, http.MethodPost, "/chats/group", gin.H{"name": "devs", "members": []int{2, 99}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.roomRepo.AssertNotCalled(t, "CreateGroupRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupChatRequiresName(t *testing.T) {
	f := newHandlerFixture(1)
	rec := f.do(t, http.MethodPost, "/chats/group", gin.H{"members": []int{2}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoomMessages(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.roomRepo.On("GetGroupRoom", mock.Anything, 1).
		Return(models.GroupRoom{ID: 1, Name: "devs", CreatedAt: at}, nil)
	f.messageRepo.On("ListRoomMessages", mock.Anything, ref).Return([]models.Message{
		{ID: 1, SenderID: 1, Body: "hi", CreatedAt: at},
		{ID: 2, SenderID: 2, Body: "hello", CreatedAt: at.Add(time.Minute), ReplyTo: sql.NullInt64{Int64: 1, Valid: true}},
	}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{1, 2}).
		Return([]models.User{{ID: 1, Username: "alice", FirstName: "Alice"}, {ID: 2, Username: "bob", FirstName: "Bob"}}, nil)

	rec := f.do(t, http.MethodGet, "/chats/group/1/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "devs", body["room"].(map[string]any)["name"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)

	first := msgs[0].(map[string]any)
	assert.Equal(t, "alice", first["sender_username"])
	assert.Equal(t, "hi", first["message"])
	// history timestamps use the same layout as websocket frames
	assert.Equal(t, "2025-03-10T12:00:00Z", first["timestamp"])
	assert.Equal(t, at.Format(time.RFC3339), first["timestamp"])

	second := msgs[1].(map[string]any)
	assert.Equal(t, "bob", second["sender_username"])
	assert.Equal(t, float64(1), second["reply_to"])
}

func TestGetRoomMessagesPrivateHeader(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindPrivate, ID: 4}
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.roomRepo.On("GetPrivateRoom", mock.Anything, 4).
		Return(models.PrivateRoom{ID: 4, User1ID: 1, User2ID: 2, CreatedAt: at}, nil)
	f.userRepo.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil)
	f.messageRepo.On("ListRoomMessages", mock.Anything, ref).Return([]models.Message{}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{}).Return([]models.User{}, nil)

	rec := f.do(t, http.MethodGet, "/chats/private/4/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	room := decodeBody(t, rec)["room"].(map[string]any)
	assert.Equal(t, float64(2), room["other_user_id"])
	assert.Equal(t, "bob", room["other_username"])
}

func TestGetRoomMessagesNonMember(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindPrivate, ID: 8}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(false, nil)

	rec := f.do(t, http.MethodGet, "/chats/private/8/messages", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	f.messageRepo.AssertNotCalled(t, "ListRoomMessages", mock.Anything, mock.Anything)
}

func TestGetRoomMessagesBadRoomType(t *testing.T) {
	f := newHandlerFixture(1)
	rec := f.do(t, http.MethodGet, "/chats/channel/1/messages", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostRoomMessage(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil)
	f.messageRepo.On("CreateMessage", mock.Anything, ref, 1, "hi", (*int)(nil)).
		Return(models.Message{ID: 5, SenderID: 1, Body: "hi", CreatedAt: time.Now()}, nil)

	rec := f.do(t, http.MethodPost, "/chats/group/1/messages", gin.H{"content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestPostRoomMessageEmptyBody(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil)

	rec := f.do(t, http.MethodPost, "/chats/group/1/messages", gin.H{"content": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostRoomMessageMissingContent(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)

	rec := f.do(t, http.MethodPost, "/chats/group/1/messages", gin.H{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessage(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.messageRepo.On("GetMessage", mock.Anything, 5).Return(models.Message{
		ID:       5,
		SenderID: 1,
		RoomType: models.RoomKindGroup,
		GroupID:  sql.NullInt64{Int64: 1, Valid: true},
	}, nil)
	f.messageRepo.On("SoftDeleteMessage", mock.Anything, 5, 1).Return(nil)

	rec := f.do(t, http.MethodDelete, "/chats/group/1/messages/5", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteMessageNotSender(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.messageRepo.On("GetMessage", mock.Anything, 5).Return(models.Message{
		ID:       5,
		SenderID: 2,
		RoomType: models.RoomKindGroup,
		GroupID:  sql.NullInt64{Int64: 1, Valid: true},
	}, nil)

	rec := f.do(t, http.MethodDelete, "/chats/group/1/messages/5", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	f.messageRepo.AssertNotCalled(t, "SoftDeleteMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMessageWrongRoom(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.messageRepo.On("GetMessage", mock.Anything, 5).Return(models.Message{
		ID:       5,
		SenderID: 1,
		RoomType: models.RoomKindGroup,
		GroupID:  sql.NullInt64{Int64: 2, Valid: true},
	}, nil)

	rec := f.do(t, http.MethodDelete, "/chats/group/1/messages/5", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTogglePin(t *testing.T) {
	f := newHandlerFixture(1)
	ref := models.RoomRef{Kind: models.RoomKindGroup, ID: 1}

	f.roomRepo.On("IsRoomMember", mock.Anything, ref, 1).Return(true, nil)
	f.messageRepo.On("GetMessage", mock.Anything, 5).Return(models.Message{
		ID:       5,
		SenderID: 2,
		RoomType: models.RoomKindGroup,
		GroupID:  sql.NullInt64{Int64: 1, Valid: true},
		Pinned:   false,
	}, nil)
	f.messageRepo.On("SetPinned", mock.Anything, 5, true).Return(nil)

	rec := f.do(t, http.MethodPost, "/chats/group/1/messages/5/pin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["pinned"])
}

func TestSearchUsers(t *testing.T) {
	f := newHandlerFixture(1)

	f.userRepo.On("SearchUsers", mock.Anything, "bo", 1, 10).
		Return([]models.User{{ID: 2, Username: "bob"}}, nil)

	rec := f.do(t, http.MethodGet, "/users/search?q=bo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	users := decodeBody(t, rec)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].(map[string]any)["username"])
}

func TestSearchUsersShortQuery(t *testing.T) {
	f := newHandlerFixture(1)

	rec := f.do(t, http.MethodGet, "/users/search?q=b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["users"], 0)

	f.userRepo.AssertNotCalled(t, "SearchUsers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
