package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplyGuard admits at most one reply attempt per inbound message, absorbing
// queue redelivery.
type ReplyGuard interface {
	Acquire(ctx context.Context, inboundMessageID string) (bool, error)
}

// RedisReplyGuard uses SET NX with a TTL.
type RedisReplyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReplyGuard(client *redis.Client, ttl time.Duration) *RedisReplyGuard {
	if client == nil {
		panic("ai: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisReplyGuard{client: client, ttl: ttl}
}

func (g *RedisReplyGuard) Acquire(ctx context.Context, inboundMessageID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, "inbox:ai_reply:"+inboundMessageID, time.Now().UTC().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ai: reply guard: %w", err)
	}
	return ok, nil
}

// MemoryReplyGuard is an in-process ReplyGuard with TTL expiry.
type MemoryReplyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryReplyGuard(ttl time.Duration) *MemoryReplyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryReplyGuard{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (g *MemoryReplyGuard) Acquire(_ context.Context, inboundMessageID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if at, ok := g.seen[inboundMessageID]; ok && now.Sub(at) < g.ttl {
		return false, nil
	}
	g.seen[inboundMessageID] = now
	if len(g.seen) > 10000 {
		for id, at := range g.seen {
			if now.Sub(at) >= g.ttl {
				delete(g.seen, id)
			}
		}
	}
	return true, nil
}
