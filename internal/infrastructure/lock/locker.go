package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Locker hands out mutual exclusion per key with a bounded wait.
// Acquire returns ErrLockFailed when timeout elapses first.
type Locker interface {
	Acquire(ctx context.Context, key string, timeout time.Duration) (release func(), err error)
}

// AccountLockKey is the key every ledger mutation of an account locks.
func AccountLockKey(accountID string) string {
	return fmt.Sprintf("goldpay:lock:account:%s", accountID)
}

// ----------------------------------------------------------------------------
// In-process locker
// ----------------------------------------------------------------------------

// LocalLocker serializes holders of the same key inside one process. A key's
// slot lives only while someone holds or waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

func (l *LocalLocker) ref(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	s := l.ref(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.unref(key, s)
			})
		}, nil
	case <-timer.C:
		l.unref(key, s)
		return nil, ErrLockFailed
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

// ----------------------------------------------------------------------------
// Redis locker
// ----------------------------------------------------------------------------

// RedisLocker takes a DistributedLock per key so several server processes
// can share one ledger store.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	logger        zerolog.Logger
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, logger zerolog.Logger) *RedisLocker {
	if retryInterval <= 0 {
		retryInterval = 20 * time.Millisecond
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		logger:        logger.With().Str("component", "RedisLocker").Logger(),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	dl := NewDistributedLock(l.client, key, uuid.NewString(), l.ttl)
	if err := dl.Lock(ctx, l.retryInterval, timeout); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the request ctx may already be done here
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := dl.Unlock(ctx); err != nil {
				l.logger.Warn().Err(err).Str("key", key).Msg("release lock")
			}
		})
	}, nil
}

var (
	_ Locker = (*LocalLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
