// internal/messaging/hub.go
// Connection gateway: rooms and live broadcast over registered connections

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Room name helpers. Three room kinds exist: one per user for targeted
// pushes, one per conversation for thread broadcast, one per role for
// role-wide announcements.
func UserRoom(userID int64) string         { return fmt.Sprintf("user:%d", userID) }
func ConversationRoom(convID int64) string { return fmt.Sprintf("conversation:%d", convID) }
func RoleRoom(role string) string          { return fmt.Sprintf("role:%s", role) }

// Hub is the connection gateway. It owns room membership, layered on top of
// the presence registry, and fans frames out to subscribed connections.
type Hub struct {
	presence Presence

	// All live connections, for presence_change fan-out.
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex

	register   chan *Client
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(presence Presence) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		presence:   presence,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			h.cleanup()
			return
		}
	}
}

// registerClient binds the connection in the registry (last-connection-wins;
// the replaced connection is not force-closed, it evicts itself on its own
// disconnect), auto-joins the personal and role rooms, and announces the
// online transition.
func (h *Hub) registerClient(client *Client) {
	prev := h.presence.Bind(client.userID, client)

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.Join(client, UserRoom(client.userID))
	if client.role != "" {
		h.Join(client, RoleRoom(client.role))
	}

	connectionsTotal.WithLabelValues("connect").Inc()
	activeConnections.Set(float64(h.ClientCount()))

	if prev == nil {
		// First connection for this user: announce the transition.
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.BroadcastPresence(client.userID, "online")
		}()
	}

	log.Printf("gateway: user %d connected (%d clients)", client.userID, h.ClientCount())
}

// unregisterClient removes the connection from all rooms and, only when it is
// still the registered one for its user, evicts the presence binding. The
// guard keeps a delayed disconnect of a replaced connection from knocking the
// newer one offline.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for room, members := range h.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	client.close()

	connectionsTotal.WithLabelValues("disconnect").Inc()
	activeConnections.Set(float64(h.ClientCount()))

	if h.presence.Unbind(client.userID, client) {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.BroadcastPresence(client.userID, "offline")
		}()
	}

	log.Printf("gateway: user %d disconnected (%d clients)", client.userID, h.ClientCount())
}

// Join subscribes the connection to a room.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
}

// Leave unsubscribes the connection from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// BroadcastToRoom sends a frame to every connection subscribed to the room,
// optionally skipping one user (the sender already has the message locally).
// Best-effort: a connection with a full send queue is dropped rather than
// blocking the rest of the room.
func (h *Hub) BroadcastToRoom(room string, frame Frame, excludeUserID int64) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("gateway: marshal frame for room %s: %v", room, err)
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		if client.userID != excludeUserID {
			members = append(members, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range members {
		h.push(client, data)
	}
	broadcastsTotal.WithLabelValues(frame.Type).Inc()
}

// SendToUser delivers a frame to the user's personal room.
func (h *Hub) SendToUser(userID int64, frame Frame) {
	h.BroadcastToRoom(UserRoom(userID), frame, 0)
}

// BroadcastPresence announces an online/offline transition to every live
// connection. Best-effort, no retry.
func (h *Hub) BroadcastPresence(userID int64, state string) {
	frame := NewFrame(EventPresenceChange, PresenceChange{
		UserID: userID,
		State:  state,
	})
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.userID != userID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.push(client, data)
	}
}

func (h *Hub) push(client *Client, data []byte) {
	if !client.trySend(data) {
		// Slow or already-closed consumer; drop the connection, the client
		// will reconnect and re-fetch. Unregister of a gone client is a no-op.
		select {
		case h.unregister <- client:
		default:
		}
	}
}

// IsOnline delegates to the registry.
func (h *Hub) IsOnline(userID int64) bool {
	return h.presence.IsOnline(userID)
}

// refreshPresence extends shared-store bindings on each ping cycle. The
// in-memory registry has no TTL and ignores this.
func (h *Hub) refreshPresence(userID int64) {
	if refresher, ok := h.presence.(interface{ Refresh(int64) }); ok {
		refresher.Refresh(userID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize reports the member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Register(client *Client)   { h.register <- client }
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

func (h *Hub) cleanup() {
	h.mu.Lock()
	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	h.wg.Wait()
}

// Shutdown stops the run loop and waits for pending fan-outs.
func (h *Hub) Shutdown(ctx context.Context) {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}
