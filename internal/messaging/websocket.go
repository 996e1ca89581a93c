// internal/messaging/websocket.go
// Live channel protocol frames and WebSocket configuration

package messaging

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxMessageSize = 64 * 1024

	// Send queue depth per connection
	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is the reverse proxy's job in this deployment.
		return true
	},
}

// Client -> server event types.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Server -> client event types.
const (
	EventNewMessage        = "new_message"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventPresenceChange    = "presence_change"
	EventError             = "error"
)

// Frame is the envelope for every event on the live channel.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewFrame wraps a payload in an envelope stamped with the current time.
func NewFrame(eventType string, payload interface{}) Frame {
	return Frame{
		Type:      eventType,
		Data:      mustMarshal(payload),
		Timestamp: time.Now().UTC(),
	}
}

// Client -> server payloads.

type RoomRequest struct {
	ConversationID int64 `json:"conversation_id"`
}

type TypingRequest struct {
	ConversationID int64 `json:"conversation_id"`
}

// Server -> client payloads.

type NewMessageEvent struct {
	ConversationID int64    `json:"conversation_id"`
	Message        *Message `json:"message"`
}

type TypingEvent struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	UserName       string `json:"user_name,omitempty"`
}

type PresenceChange struct {
	UserID int64  `json:"user_id"`
	State  string `json:"state"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("gateway: marshal payload: %v", err)
		return json.RawMessage(`{}`)
	}
	return data
}
