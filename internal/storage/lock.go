package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"tadaa_concierge/internal/logger"
)

const lockRetryDelay = 100 * time.Millisecond

// LocalLocker serialises work per key inside one process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// RedisLocker serialises work per key across processes with redsync
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a locker over client. ttl bounds how long a lock
// outlives a crashed holder and how long Lock keeps retrying.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Lock acquires the distributed mutex for key
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	tries := int(l.ttl / lockRetryDelay)
	if tries < 1 {
		tries = 1
	}

	mutex := l.rs.NewMutex(
		fmt.Sprintf("%s:lock:%s", l.prefix, key),
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(lockRetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := mutex.UnlockContext(context.Background()); err != nil {
				logger.Error().Err(err).Str("lock", key).Msg("Failed to unlock mutex")
			}
		})
	}, nil
}
