// internal/messaging/presence_redis.go
// Redis-backed presence for multi-instance deployments

package messaging

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const presenceTTL = 90 * time.Second

// RedisPresence layers a shared last-writer-wins online map over the local
// registry. Connection handles stay process-local (a handle is useless on
// another instance); only reachability is shared. Each binding is refreshed
// by the client's ping loop and expires on its own if an instance dies.
type RedisPresence struct {
	local    *Registry
	rdb      *redis.Client
	instance string
}

func NewRedisPresence(rdb *redis.Client, instanceID string) *RedisPresence {
	return &RedisPresence{
		local:    NewRegistry(),
		rdb:      rdb,
		instance: instanceID,
	}
}

func presenceKey(userID int64) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

func (p *RedisPresence) Bind(userID int64, conn *Client) *Client {
	prev := p.local.Bind(userID, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Set(ctx, presenceKey(userID), p.instance, presenceTTL).Err(); err != nil {
		log.Printf("presence: redis bind for user %d failed: %v", userID, err)
	}
	return prev
}

func (p *RedisPresence) Unbind(userID int64, conn *Client) bool {
	if !p.local.Unbind(userID, conn) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Delete only our own marker; a newer binding on another instance owns
	// the key now.
	val, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if err == nil && val == p.instance {
		if err := p.rdb.Del(ctx, presenceKey(userID)).Err(); err != nil {
			log.Printf("presence: redis unbind for user %d failed: %v", userID, err)
		}
	}
	return true
}

func (p *RedisPresence) Lookup(userID int64) (*Client, bool) {
	return p.local.Lookup(userID)
}

func (p *RedisPresence) IsOnline(userID int64) bool {
	if p.local.IsOnline(userID) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := p.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		// Degrade to the local view rather than failing the caller.
		return false
	}
	return n > 0
}

func (p *RedisPresence) Snapshot() []int64 {
	return p.local.Snapshot()
}

// Refresh extends the shared binding's TTL. Called from the client ping loop.
func (p *RedisPresence) Refresh(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Expire(ctx, presenceKey(userID), presenceTTL).Err(); err != nil {
		log.Printf("presence: redis refresh for user %d failed: %v", userID, err)
	}
}
