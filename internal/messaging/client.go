// internal/messaging/client.go
// One live connection: read/write pumps and protocol dispatch

package messaging

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one authenticated live connection. Each connection runs an
// independent read pump and write pump; the only state shared with other
// connections is the hub and the stores.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	service Service

	userID      int64
	role        string
	displayName string

	// Guards send against a broadcast racing close: a push that loses the
	// race must drop the frame, not panic on a closed channel.
	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, service Service, userID int64, role, displayName string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		service:     service,
		userID:      userID,
		role:        role,
		displayName: displayName,
	}
}

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("gateway: read error for user %d: %v", c.userID, err)
			}
			break
		}
		c.handleFrame(data)
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
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.hub.refreshPresence(c.userID)
		}
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError("bad_frame", "malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch frame.Type {
	case EventJoinRoom:
		c.handleJoinRoom(ctx, frame.Data)

	case EventLeaveRoom:
		var req RoomRequest
		if json.Unmarshal(frame.Data, &req) == nil {
			c.hub.Leave(c, ConversationRoom(req.ConversationID))
		}

	case EventSendMessage:
		c.handleSendMessage(ctx, frame.Data)

	case EventTypingStart:
		c.handleTyping(frame.Data, true)

	case EventTypingStop:
		c.handleTyping(frame.Data, false)

	default:
		c.sendError("unknown_event", "unknown event type: "+frame.Type)
	}
}

// handleJoinRoom subscribes to a conversation room after verifying the
// caller actually belongs to the conversation.
func (c *Client) handleJoinRoom(ctx context.Context, data json.RawMessage) {
	var req RoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("bad_frame", "malformed join_room payload")
		return
	}

	if err := c.service.EnsureParticipant(ctx, req.ConversationID, c.userID); err != nil {
		c.sendError("join_denied", "not a participant of this conversation")
		return
	}
	c.hub.Join(c, ConversationRoom(req.ConversationID))
}

func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var req SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("bad_frame", "malformed send_message payload")
		return
	}

	// Persists, updates the conversation cache, and hands off to the
	// dispatcher; the sender gets the same new_message frame as the room.
	if _, err := c.service.SendMessage(ctx, c.userID, &req); err != nil {
		c.sendError("send_failed", err.Error())
	}
}

// Typing indicators never touch the stores: they are pure room broadcast and
// vanish if nobody is subscribed.
func (c *Client) handleTyping(data json.RawMessage, typing bool) {
	var req TypingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	event := TypingEvent{
		ConversationID: req.ConversationID,
		UserID:         c.userID,
	}
	eventType := EventUserStoppedTyping
	if typing {
		event.UserName = c.displayName
		eventType = EventUserTyping
	}
	c.hub.BroadcastToRoom(ConversationRoom(req.ConversationID), NewFrame(eventType, event), c.userID)
}

func (c *Client) sendError(code, message string) {
	frame := NewFrame(EventError, ErrorEvent{Code: code, Message: message})
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend enqueues without blocking. False means the connection is gone or
// its queue is full; either way the frame is not deliverable.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
