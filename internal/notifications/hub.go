// Package notifications delivers live updates over WebSockets: a global
// feed stream of content events and per-chat message streams.
package notifications

import (
	"errors"
	"sync"

	"github.com/gofiber/websocket/v2"

	"beacon/internal/observability"
)

const (
	// maxConnsPerUser caps concurrent sockets per user.
	maxConnsPerUser = 8
	// maxTotalConns caps sockets across all users.
	maxTotalConns = 10000
)

// Hub maps users to their live connections and chats to their subscribed
// connections.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	totalConns int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*Client]struct{}),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Name identifies this hub in logs.
func (h *Hub) Name() string { return "feed hub" }

// Register adds a connection for userID, enforcing connection limits.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, errors.New("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	observability.FeedSubscribers.Inc()
	return client, nil
}

// UnregisterClient removes a connection and any room subscriptions it held.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			observability.FeedSubscribers.Dec()
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// JoinRoom subscribes the client to a chat's message stream.
func (h *Hub) JoinRoom(chatID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[chatID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[chatID] = members
	}
	members[client] = struct{}{}
}

// BroadcastAll delivers a message to every connected client.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.conns {
		for client := range m {
			client.TrySend(message)
		}
	}
}

// BroadcastUser delivers a message to all of one user's connections.
func (h *Hub) BroadcastUser(userID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.conns[userID] {
		client.TrySend(message)
	}
}

// BroadcastRoom delivers a message to every client subscribed to a chat.
func (h *Hub) BroadcastRoom(chatID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[chatID] {
		client.TrySend(message)
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}
