// internal/messaging/presence.go
// Presence registry: which users currently hold a live connection

package messaging

import (
	"sync"
)

// Presence tracks reachable users. The in-memory implementation is
// process-local and rebuilt from scratch on restart; the Redis-backed variant
// in presence_redis.go shares the same last-writer-wins contract across
// instances.
type Presence interface {
	// Bind records conn as the user's live connection, replacing any prior
	// one. The prior connection is returned (and not closed here): the
	// registry only decides who is current.
	Bind(userID int64, conn *Client) (prev *Client)

	// Unbind removes the binding only if conn is still the one on record.
	// A stale disconnect event for an already-replaced connection must not
	// evict the newer one. Returns true when the binding was removed.
	Unbind(userID int64, conn *Client) bool

	// Lookup returns the user's current connection, if any.
	Lookup(userID int64) (*Client, bool)

	// IsOnline is a point-in-time query with no durability claim.
	IsOnline(userID int64) bool

	// Snapshot lists the user IDs currently bound.
	Snapshot() []int64
}

// Registry is the in-memory Presence implementation: one live connection per
// user, last-connection-wins.
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[int64]*Client),
	}
}

func (r *Registry) Bind(userID int64, conn *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.clients[userID]
	r.clients[userID] = conn
	return prev
}

func (r *Registry) Unbind(userID int64, conn *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.clients[userID]
	if !ok || current != conn {
		return false
	}
	delete(r.clients, userID)
	return true
}

func (r *Registry) Lookup(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[userID]
	return c, ok
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[userID]
	return ok
}

func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of live bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
