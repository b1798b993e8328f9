package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"urbansprout/internal/middleware"
	"urbansprout/pkg/log"
	"urbansprout/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UnreadCounter provides the unread count pushed right after binding
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID uint64) (int64, error)
}

// Handler upgrades authenticated requests to websocket connections
type Handler struct {
	hub        *Hub
	sink       MessageSink
	counter    UnreadCounter
	validator  middleware.TokenValidator
	sendBuffer int
}

// NewHandler creates a websocket handler
func NewHandler(hub *Hub, sink MessageSink, counter UnreadCounter, validator middleware.TokenValidator, sendBuffer int) *Handler {
	return &Handler{
		hub:        hub,
		sink:       sink,
		counter:    counter,
		validator:  validator,
		sendBuffer: sendBuffer,
	}
}

// ServeWS authenticates the token query parameter, then upgrades the
// connection. Authentication failures are rejected before the upgrade
// so the client gets a plain HTTP 401.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.Error(c, utils.CodeUnauthorized, "Missing token")
		return
	}

	userInfo, err := h.validator(token)
	if err != nil {
		utils.Error(c, utils.CodeUnauthorized, "Invalid token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"user_id": userInfo.ID,
			"error":   err.Error(),
		}).Warn("Websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, h.sink, userInfo.ID, userInfo.Username, userInfo.Role, h.sendBuffer)
	client.Start()

	// Let the client render its badge without an extra round trip.
	if count, err := h.counter.UnreadCount(c.Request.Context(), userInfo.ID); err == nil {
		h.hub.Push(userInfo.ID, Event{
			Type: EventUnreadCountUpdate,
			Data: UnreadCountEvent{UnreadCount: count},
		})
	}
}
