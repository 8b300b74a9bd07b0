// Package realtime keeps the registry of live websocket connections and their rooms.
//
// Delivery is best-effort: a connection whose send buffer is full misses the
// event, and nothing is replayed after a reconnect. Clients recover state by
// polling the HTTP API.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/pkg/logger"
)

// Broadcaster is the emit side of the hub used by services and jobs.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
	EmitToRoom(room, event string, payload interface{})
	EmitToUser(userID, event string, payload interface{})
}

// Envelope is the wire format of every server-to-client message.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

func UserRoom(userID string) string { return "user-" + userID }

func TaskRoom(taskID string) string { return "task-" + taskID }

func ProjectRoom(projectID string) string { return "project-" + projectID }

type HubStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Hub is the connection registry. Rooms exist only while they have members.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister drops the client from every room and closes its send channel.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
}

// Join adds the client to room, creating the room on first join.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes the client from room and deletes the room once empty.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast sends to every connection.
func (h *Hub) Broadcast(event string, payload interface{}) {
	msg, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

// EmitToRoom sends to the members of room. An empty or unknown room is a no-op.
func (h *Hub) EmitToRoom(room, event string, payload interface{}) {
	h.emit(room, event, payload, nil)
}

func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	h.emit(UserRoom(userID), event, payload, nil)
}

func (h *Hub) emit(room, event string, payload interface{}, except *Client) {
	h.mu.RLock()
	members := len(h.rooms[room])
	h.mu.RUnlock()
	if members == 0 {
		return
	}

	msg, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c != except {
			c.enqueue(msg)
		}
	}
}

// sendTo delivers one event to a single registered client.
func (h *Hub) sendTo(c *Client, event string, payload interface{}) {
	msg, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.enqueue(msg)
	}
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{Connections: len(h.clients), Rooms: len(h.rooms)}
}

// RoomSize returns the number of members in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func encode(event string, payload interface{}) ([]byte, bool) {
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"event": event, "error": err}).Error("Failed to encode socket event")
		return nil, false
	}
	return msg, true
}
