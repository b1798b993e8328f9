package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbansprout/internal/middleware"
)

type fakeSink struct {
	markedRead []uint64
	markedAll  int
}

func (f *fakeSink) MarkRead(ctx context.Context, userID, notificationID uint64) error {
	f.markedRead = append(f.markedRead, notificationID)
	return nil
}

func (f *fakeSink) MarkAllRead(ctx context.Context, userID uint64) error {
	f.markedAll++
	return nil
}

type fakeCounter struct {
	unread int64
}

func (f *fakeCounter) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return f.unread, nil
}

func wsTestServer(t *testing.T, hub *Hub, sink *fakeSink, counter *fakeCounter) *httptest.Server {
	gin.SetMode(gin.TestMode)

	validator := func(token string) (*middleware.UserInfo, error) {
		if token == "good-token" {
			return &middleware.UserInfo{ID: 42, Username: "fern", Role: "user"}, nil
		}
		return nil, errors.New("token invalid")
	}

	r := gin.New()
	handler := NewHandler(hub, sink, counter, validator, 16)
	r.GET("/ws", handler.ServeWS)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	return Event{Type: event.Type, Data: event.Data}
}

func TestServeWS_RejectsBeforeUpgrade(t *testing.T) {
	hub := NewHub(nil)
	server := wsTestServer(t, hub, &fakeSink{}, &fakeCounter{})

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, ""), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "bad-token"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 401, resp.StatusCode)
	})

	assert.Equal(t, 0, hub.Count())
}

func TestServeWS_PushesInitialUnreadCount(t *testing.T) {
	hub := NewHub(nil)
	server := wsTestServer(t, hub, &fakeSink{}, &fakeCounter{unread: 4})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "good-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	event := readEvent(t, conn)
	assert.Equal(t, EventUnreadCountUpdate, event.Type)

	var payload UnreadCountEvent
	require.NoError(t, json.Unmarshal(event.Data.(json.RawMessage), &payload))
	assert.Equal(t, int64(4), payload.UnreadCount)
}

func TestServeWS_MarkReadRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	sink := &fakeSink{}
	server := wsTestServer(t, hub, sink, &fakeCounter{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "good-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Initial unread count arrives first.
	readEvent(t, conn)

	err = conn.WriteJSON(map[string]interface{}{
		"type": ActionMarkNotificationRead,
		"data": map[string]interface{}{"notification_id": 9},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(sink.markedRead) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{9}, sink.markedRead)
}

func TestServeWS_UnknownMessageType(t *testing.T) {
	hub := NewHub(nil)
	server := wsTestServer(t, hub, &fakeSink{}, &fakeCounter{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "good-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "launch_rocket"}))

	event := readEvent(t, conn)
	assert.Equal(t, EventError, event.Type)
}

func TestServeWS_ReconnectDisplacesOldConnection(t *testing.T) {
	hub := NewHub(nil)
	server := wsTestServer(t, hub, &fakeSink{}, &fakeCounter{})

	first, _, err := websocket.DefaultDialer.Dial(wsURL(server, "good-token"), nil)
	require.NoError(t, err)
	defer first.Close()
	readEvent(t, first)

	second, _, err := websocket.DefaultDialer.Dial(wsURL(server, "good-token"), nil)
	require.NoError(t, err)
	defer second.Close()
	readEvent(t, second)

	assert.Equal(t, 1, hub.Count())

	// The old socket closing after the reconnect must not evict the
	// replacement binding.
	require.NoError(t, first.Close())
	time.Sleep(100 * time.Millisecond)
	assert.True(t, hub.IsOnline(42))
}
