package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"urbansprout/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// MessageSink handles read-state actions arriving over the socket
type MessageSink interface {
	// MarkRead marks one notification read for the user
	MarkRead(ctx context.Context, userID, notificationID uint64) error

	// MarkAllRead marks every unread notification read for the user
	MarkAllRead(ctx context.Context, userID uint64) error
}

// inboundMessage inbound websocket frame
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client one authenticated websocket connection
type Client struct {
	UserID   uint64
	Username string
	Role     string

	generation uint64

	conn *websocket.Conn
	send chan Event
	hub  *Hub
	sink MessageSink

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a client for an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, sink MessageSink, userID uint64, username, role string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		UserID:   userID,
		Username: username,
		Role:     role,
		conn:     conn,
		send:     make(chan Event, sendBuffer),
		hub:      hub,
		sink:     sink,
		done:     make(chan struct{}),
	}
}

// Start binds the client and launches the read and write pumps
func (c *Client) Start() {
	c.hub.Bind(c)
	go c.writePump()
	go c.readPump()
}

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unbind(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msgBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Warn("Websocket read error")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) handleMessage(msg inboundMessage) {
	if c.hub.metrics != nil {
		c.hub.metrics.RecordWSMessage("in", msg.Type)
	}

	ctx := context.Background()

	switch msg.Type {
	case ActionMarkNotificationRead:
		var payload struct {
			NotificationID uint64 `json:"notification_id"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.NotificationID == 0 {
			c.sendError("notification_id is required")
			return
		}
		if err := c.sink.MarkRead(ctx, c.UserID, payload.NotificationID); err != nil {
			log.WithFields(map[string]interface{}{
				"user_id":         c.UserID,
				"notification_id": payload.NotificationID,
				"error":           err.Error(),
			}).Warn("Failed to mark notification read")
			c.sendError("failed to mark notification read")
		}

	case ActionMarkAllRead:
		if err := c.sink.MarkAllRead(ctx, c.UserID); err != nil {
			log.WithFields(map[string]interface{}{
				"user_id": c.UserID,
				"error":   err.Error(),
			}).Warn("Failed to mark all notifications read")
			c.sendError("failed to mark all notifications read")
		}

	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) sendError(message string) {
	select {
	case c.send <- Event{Type: EventError, Data: ErrorEvent{Message: message}}:
	default:
	}
}
