package ws

import (
	"sync"

	"urbansprout/internal/model"
	"urbansprout/internal/monitor"
	"urbansprout/pkg/log"
)

// Hub tracks the live connection for each user. At most one connection
// per user: binding a new connection displaces the previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
	nextGen uint64

	metrics *monitor.MetricsCollector
}

// NewHub creates a hub
func NewHub(metrics *monitor.MetricsCollector) *Hub {
	return &Hub{
		clients: make(map[uint64]*Client),
		metrics: metrics,
	}
}

// Bind registers a client as the live connection for its user and tags
// it with a fresh generation. A previously bound connection for the
// same user is silently displaced, not closed: it dies on its own read
// timeout, and its late disconnect is ignored by the generation guard
// in Unbind.
func (h *Hub) Bind(client *Client) {
	h.mu.Lock()
	h.nextGen++
	client.generation = h.nextGen

	_, exists := h.clients[client.UserID]
	h.clients[client.UserID] = client
	count := len(h.clients)
	h.mu.Unlock()

	if exists {
		log.WithFields(map[string]interface{}{
			"user_id": client.UserID,
		}).Info("Replaced existing websocket connection")
	}

	if h.metrics != nil {
		h.metrics.SetWSConnections(count)
	}

	log.WithFields(map[string]interface{}{
		"user_id":    client.UserID,
		"generation": client.generation,
		"total":      count,
	}).Info("Websocket client bound")
}

// Unbind removes a client only if it is still the bound connection for
// its user. A disconnect arriving after the user reconnected matches an
// older generation and leaves the newer binding untouched.
func (h *Hub) Unbind(client *Client) {
	h.mu.Lock()
	current, exists := h.clients[client.UserID]
	if !exists || current.generation != client.generation {
		h.mu.Unlock()
		log.WithFields(map[string]interface{}{
			"user_id":    client.UserID,
			"generation": client.generation,
		}).Debug("Stale websocket disconnect ignored")
		return
	}
	delete(h.clients, client.UserID)
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWSConnections(count)
	}

	log.WithFields(map[string]interface{}{
		"user_id":    client.UserID,
		"generation": client.generation,
		"total":      count,
	}).Info("Websocket client unbound")
}

// Push delivers an event to a user's live connection. Returns false
// when the user is offline or the connection's send queue is full.
func (h *Hub) Push(userID uint64, event Event) bool {
	h.mu.RLock()
	client, exists := h.clients[userID]
	h.mu.RUnlock()

	if !exists {
		return false
	}

	select {
	case client.send <- event:
		if h.metrics != nil {
			h.metrics.RecordWSMessage("out", event.Type)
		}
		return true
	default:
		if h.metrics != nil {
			h.metrics.RecordNotificationPushFailed("send_queue_full")
		}
		log.WithFields(map[string]interface{}{
			"user_id": userID,
			"type":    event.Type,
		}).Warn("Websocket send queue full, dropping event")
		return false
	}
}

// PushToAdmins delivers an event to every bound admin connection
func (h *Hub) PushToAdmins(event Event) int {
	h.mu.RLock()
	var admins []*Client
	for _, client := range h.clients {
		if client.Role == model.RoleAdmin {
			admins = append(admins, client)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range admins {
		select {
		case client.send <- event:
			delivered++
			if h.metrics != nil {
				h.metrics.RecordWSMessage("out", event.Type)
			}
		default:
			if h.metrics != nil {
				h.metrics.RecordNotificationPushFailed("send_queue_full")
			}
		}
	}
	return delivered
}

// IsOnline reports whether a user has a bound connection
func (h *Hub) IsOnline(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// Count returns the number of bound connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every bound connection
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[uint64]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}

	if h.metrics != nil {
		h.metrics.SetWSConnections(0)
	}
}
