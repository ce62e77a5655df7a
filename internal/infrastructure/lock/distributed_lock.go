package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// Redis distributed lock
// ============================================================================
//
// Acquire: SET key value NX PX ttl
//   - NX keeps it mutually exclusive
//   - the TTL frees the key if the holder dies
//   - value identifies the holder so Unlock never deletes someone else's lock
//
// Release: a Lua script compares the value and deletes in one step.
//
// ============================================================================

var (
	ErrLockFailed   = errors.New("lock: acquire timed out")
	ErrLockNotOwned = errors.New("lock: not held by this owner")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock is a single Redis lock held under one owner token.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

// NewDistributedLock creates a lock on key owned by value.
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes a single non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries TryLock every retryInterval until wait elapses.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrLockFailed
		case <-time.After(retryInterval):
		}
	}
}

// Unlock releases the lock if it is still held by this owner.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotOwned
	}
	return nil
}
