package concurrency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// InMemoryLock is a single-process RunnerLock: a mutex-guarded set of held
// keys. Within one process it duplicates the exclusion the controller's slot
// table already provides. app.New does not use it: without a Redis address
// the controller runs with no RunnerLock at all.
type InMemoryLock struct {
	mu      sync.Mutex
	holders map[string]bool
}

func NewInMemoryLock() *InMemoryLock {
	return &InMemoryLock{holders: make(map[string]bool)}
}

func (l *InMemoryLock) TryAcquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[key] {
		return false, nil
	}
	l.holders[key] = true
	return true, nil
}

func (l *InMemoryLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holders, key)
	return nil
}

// RedisLock backs RunnerLock with a Redis SET NX, for multi-instance
// deployments where two processes could otherwise both claim the same
// (account, resource) key.
type RedisLock struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLock(client redis.Cmdable, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, ttl: ttl}
}

func (l *RedisLock) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, "emagsync:lock:"+key, "1", l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, "emagsync:lock:"+key).Err()
}
