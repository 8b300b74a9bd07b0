package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/synergysphere/server/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBufferSize = 64
	maxRoomIDLen   = 128
)

// Client is one authenticated websocket connection. UserID comes from the verified token.
type Client struct {
	ID     string
	UserID string

	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]struct{} // guarded by hub.mu
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]struct{}),
	}
}

// enqueue never blocks. Must be called with hub.mu held.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		logger.Log.WithFields(logrus.Fields{"user_id": c.UserID, "conn_id": c.ID}).Warn("Dropping socket event for slow client")
	}
}

// Serve registers the client, joins its user room and blocks until the connection ends.
func (c *Client) Serve() {
	if !c.hub.register(c) {
		c.conn.Close()
		return
	}
	room := UserRoom(c.UserID)
	c.hub.Join(c, room)

	go c.writePump()

	log := logger.Log.WithFields(logrus.Fields{"user_id": c.UserID, "conn_id": c.ID})
	log.Info("WebSocket connected")

	c.hub.sendTo(c, "connected", map[string]string{"userId": c.UserID, "room": room})
	c.hub.Broadcast("user-status-updated", map[string]string{"userId": c.UserID, "status": "online"})

	c.readPump()

	c.hub.unregister(c)
	c.hub.Broadcast("user-status-updated", map[string]string{"userId": c.UserID, "status": "offline"})
	log.Info("WebSocket disconnected")
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.WithError(err).WithField("user_id", c.UserID).Warn("WebSocket read error")
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.sendTo(c, "error", map[string]string{"message": "malformed message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type typingPayload struct {
	TaskID   string `json:"taskId"`
	Username string `json:"username"`
}

func (c *Client) handle(msg inbound) {
	switch msg.Event {
	case "join-user", "join-room":
		// The user room is joined on connect; a request can only confirm it.
		id := parseID(msg.Data, "userId")
		if id != c.UserID {
			c.reject(msg.Event, "cannot join another user's room")
			return
		}
		c.hub.sendTo(c, "joined", map[string]string{"room": UserRoom(c.UserID)})

	case "join-project", "join-team":
		c.joinRoom(msg.Event, ProjectRoom, parseID(msg.Data, "projectId"))

	case "join-task":
		c.joinRoom(msg.Event, TaskRoom, parseID(msg.Data, "taskId"))

	case "leave-room":
		room := parseID(msg.Data, "room")
		if room == "" || room == UserRoom(c.UserID) {
			c.reject(msg.Event, "cannot leave this room")
			return
		}
		c.hub.Leave(c, room)
		c.hub.sendTo(c, "left", map[string]string{"room": room})

	case "typing-start", "start-typing":
		c.typing(msg, "user-typing")

	case "typing-stop", "stop-typing":
		c.typing(msg, "user-stopped-typing")

	case "ping":
		c.hub.sendTo(c, "pong", nil)

	default:
		c.reject(msg.Event, "unknown event")
	}
}

func (c *Client) joinRoom(event string, roomFor func(string) string, id string) {
	if id == "" || len(id) > maxRoomIDLen {
		c.reject(event, "invalid room id")
		return
	}
	room := roomFor(id)
	c.hub.Join(c, room)
	c.hub.sendTo(c, "joined", map[string]string{"room": room})
}

func (c *Client) typing(msg inbound, event string) {
	var p typingPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil || p.TaskID == "" {
		c.reject(msg.Event, "taskId is required")
		return
	}
	c.hub.emit(TaskRoom(p.TaskID), event, map[string]string{
		"userId":   c.UserID,
		"username": p.Username,
		"taskId":   p.TaskID,
	}, c)
}

func (c *Client) reject(event, message string) {
	c.hub.sendTo(c, "error", map[string]string{"event": event, "message": message})
}

// parseID accepts either a bare JSON string or an object carrying key (or "id").
func parseID(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, k := range []string{key, "id"} {
		if v, ok := obj[k].(string); ok {
			return v
		}
	}
	return ""
}
