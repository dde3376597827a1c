package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/mocks"
	"realtime-chat/internal/models"
	"realtime-chat/internal/presence"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/ws"
)

type onlineUsers []int64

func (o onlineUsers) OnlineUsers() []int64 { return o }

func setupPresenceRouter(users *mocks.UserRepositoryMock, store *mocks.PresenceRepositoryMock) *gin.Engine {
	return setupPresenceRouterWithOnline(users, store, onlineUsers(nil), 0)
}

func setupPresenceRouterWithOnline(users *mocks.UserRepositoryMock, store *mocks.PresenceRepositoryMock, online OnlineLister, callerID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewPresenceHandler(users, presence.NewTracker(store, ws.NewRegistry()), online)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", callerID)
		c.Next()
	})
	r.GET("/users/online", handler.ListOnline)
	r.GET("/users/:user_id/presence", handler.GetPresence)
	return r
}

func TestGetPresence(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := new(mocks.PresenceRepositoryMock)
	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	users.On("GetUser", mock.Anything, int64(2)).Return(models.User{ID: 2}, nil).Once()
	store.On("GetPresence", mock.Anything, int64(2)).Return(models.Presence{UserID: 2, LastSeenAt: &seen}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/2/presence", nil)
	rec := httptest.NewRecorder()
	setupPresenceRouter(users, store).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Presence
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.IsOnline)
	require.NotNil(t, got.LastSeenAt)
	assert.True(t, seen.Equal(*got.LastSeenAt))
	users.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestGetPresenceUnknownUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := new(mocks.PresenceRepositoryMock)
	users.On("GetUser", mock.Anything, int64(9)).Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/9/presence", nil)
	rec := httptest.NewRecorder()
	setupPresenceRouter(users, store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	store.AssertNotCalled(t, "GetPresence", mock.Anything, mock.Anything)
}

func TestGetPresenceInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users/abc/presence", nil)
	rec := httptest.NewRecorder()
	setupPresenceRouter(new(mocks.UserRepositoryMock), new(mocks.PresenceRepositoryMock)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOnlineExcludesCaller(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("ListUsers", mock.Anything, []int64{2, 3}).
		Return([]models.User{{ID: 2, DisplayName: "Bob"}, {ID: 3, DisplayName: "Carol"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/online", nil)
	rec := httptest.NewRecorder()
	setupPresenceRouterWithOnline(users, new(mocks.PresenceRepositoryMock), onlineUsers{1, 2, 3}, 1).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Users, 2)
	assert.Equal(t, "Bob", body.Users[0].DisplayName)
	users.AssertExpectations(t)
}

func TestListOnlineNobodyElse(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("ListUsers", mock.Anything, []int64{}).Return([]models.User{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/online", nil)
	rec := httptest.NewRecorder()
	setupPresenceRouterWithOnline(users, new(mocks.PresenceRepositoryMock), onlineUsers{4}, 4).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[]}`, rec.Body.String())
}

func TestListOnlineStoreFailure(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("ListUsers", mock.Anything, []int64{2}).Return(nil, repositories.ErrStoreUnavailable).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/online", nil)
	rec := httptest.NewRecorder()
	setupPresenceRouterWithOnline(users, new(mocks.PresenceRepositoryMock), onlineUsers{2}, 1).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
