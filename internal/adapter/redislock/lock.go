// Package redislock is a single-holder lock on one Redis key, used so that
// only one replica runs the alert sweep at a time.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the key guarding the alert sweep.
const DefaultKey = "coastal-risk:dispatch-sweep"

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock implements alert.Lock with SET NX PX.
type Lock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	token  string
}

// New creates a lock on key that expires after ttl if never released.
func New(client redis.Cmdable, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl, token: uuid.NewString()}
}

// Acquire takes the lock if it is free.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// CheckReadiness pings Redis.
func (l *Lock) CheckReadiness(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
