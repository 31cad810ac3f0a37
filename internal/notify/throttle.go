package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle admits one notification per key per window.
type Throttle interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// RedisThrottle claims keys with SET NX so every API replica shares the window.
type RedisThrottle struct {
	client *redis.Client
	prefix string
}

func NewRedisThrottle(client *redis.Client) *RedisThrottle {
	if client == nil {
		panic("notify: redis client cannot be nil")
	}
	return &RedisThrottle{client: client, prefix: "inbox:notify:"}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+key, time.Now().UTC().Unix(), window).Result()
	if err != nil {
		return false, fmt.Errorf("notify: throttle: %w", err)
	}
	return ok, nil
}

// MemoryThrottle is a single-process Throttle.
type MemoryThrottle struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{until: make(map[string]time.Time), now: time.Now}
}

func (t *MemoryThrottle) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if until, ok := t.until[key]; ok && now.Before(until) {
		return false, nil
	}
	t.until[key] = now.Add(window)
	return true, nil
}
