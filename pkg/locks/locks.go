// Package locks provides the per-collection advisory lock used to keep two
// sync passes (or two agent processes) from replaying the same queue rows.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker acquires and releases named advisory locks. Acquire never blocks;
// a held lock reports acquired=false so callers can fail fast.
type Locker interface {
	Acquire(ctx context.Context, name string) (acquired bool, err error)
	Release(ctx context.Context, name string) error
}

// CollectionLockName builds the canonical lock name for a collection.
func CollectionLockName(collectionID int32) string {
	return fmt.Sprintf("collect-sync:lock:collection:%d", collectionID)
}

// RedisLocker backs locks with SETNX keys so separate processes (a manual
// foreground sync and the background agent) exclude each other.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker builds a locker with the given lock TTL. The TTL bounds how
// long a crashed holder can block others.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (bool, error) {
	ok, err := l.client.SetNX(ctx, name, time.Now().UnixMilli(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, name string) error {
	if err := l.client.Del(ctx, name).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// MemoryLocker is the in-process fallback used when Redis is not configured
// and in tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(_ context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return false, nil
	}
	l.held[name] = struct{}{}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}
