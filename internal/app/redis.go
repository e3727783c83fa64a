package app

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emagerp/synccore/internal/concurrency"
)

// newRedisLock builds a Redis-backed RunnerLock for multi-instance
// deployments; the lock TTL is generous relative to a single sync's
// expected lifetime so a slow page never loses its lock mid-run.
func newRedisLock(addr string) *concurrency.RedisLock {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return concurrency.NewRedisLock(client, 15*time.Minute)
}
