package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	nws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"realtime-chat/internal/models"
	"realtime-chat/internal/ratelimit"
)

func newHandlerServer(t *testing.T, f *gatewayFixture, cfg HandlerConfig) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewHandler(f.gateway, cfg).Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestHandleRejectsInvalidTokenBeforeUpgrade(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.verifier.On("Verify", "bad").Return(int64(0), errors.New("expired"))
	srv := newHandlerServer(t, f, HandlerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := nws.Dial(ctx, wsURL(srv, "?token=bad"), nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, f.registry.Count())
}

func TestHandleRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.verifier.On("Verify", "").Return(int64(0), errors.New("empty"))
	srv := newHandlerServer(t, f, HandlerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := nws.Dial(ctx, wsURL(srv, ""), nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleLimitsConnectAttempts(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.verifier.On("Verify", "bad").Return(int64(0), errors.New("expired"))
	srv := newHandlerServer(t, f, HandlerConfig{ConnectLimiter: ratelimit.NewMemoryLimiter(1, time.Minute, 10)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, _ := nws.Dial(ctx, wsURL(srv, "?token=bad"), nil)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, _ = nws.Dial(ctx, wsURL(srv, "?token=bad"), nil)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHandleFailedUpgradeNeverAnnounces(t *testing.T) {
	f := newGatewayFixture(t, nil)
	alice := f.connect(t, 1)
	drain(t, alice)
	bobToken := f.expectUser(2, 10)
	srv := newHandlerServer(t, f, HandlerConfig{})

	// plain HTTP request: authentication passes, the upgrade does not
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws?token="+bobToken, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, f.registry.IsOnline(2))
	assert.Equal(t, []string{"1:on"}, f.store.transitions())
	assert.Empty(t, drain(t, alice))
}

func TestHandleEndToEnd(t *testing.T) {
	f := newGatewayFixture(t, nil)
	aliceToken := f.expectUser(1, 10)
	bobToken := f.expectUser(2, 10)
	srv := newHandlerServer(t, f, HandlerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, _, err := nws.Dial(ctx, wsURL(srv, ""), &nws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + aliceToken}},
	})
	require.NoError(t, err)
	defer alice.Close(nws.StatusNormalClosure, "")

	bob, _, err := nws.Dial(ctx, wsURL(srv, "?token="+bobToken), nil)
	require.NoError(t, err)

	var ev received
	require.NoError(t, wsjson.Read(ctx, alice, &ev))
	assert.Equal(t, models.EventUserOnline, ev.Type)

	conv := models.Conversation{ID: 10, ParticipantIDs: []int64{1, 2}}
	msg := models.Message{ID: 55, ConversationID: 10, SenderID: 1, Content: "hello", Type: models.MessageText}
	f.msgs.On("AppendMessage", mock.Anything, models.NewMessage{ConversationID: 10, SenderID: 1, Content: "hello"}).
		Return(msg, conv, nil).Once()
	f.convs.On("GetSummary", mock.Anything, int64(10)).
		Return(models.ConversationSummary{Conversation: conv, LastMessage: &msg}, nil)

	require.NoError(t, wsjson.Write(ctx, alice, map[string]any{
		"type": "sendMessage",
		"data": map[string]any{"conversation_id": 10, "content": "hello"},
	}))

	for _, conn := range []*nws.Conn{bob, alice} {
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		assert.Equal(t, models.EventNewMessage, ev.Type)
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		assert.Equal(t, models.EventConversationUpdated, ev.Type)
	}

	require.NoError(t, bob.Close(nws.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return !f.registry.IsOnline(2) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, wsjson.Read(ctx, alice, &ev))
	assert.Equal(t, models.EventUserOffline, ev.Type)
	assert.Equal(t, []string{"1:on", "2:on", "2:off"}, f.store.transitions())
}

func TestTokenFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "query fallback", query: "?token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", query: "?token=xyz", want: "abc"},
		{name: "malformed header", header: "Token abc", want: ""},
		{name: "nothing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, tokenFromRequest(c))
		})
	}
}
