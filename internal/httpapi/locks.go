package httpapi

import (
	"context"
	"sync"
	"time"

	"coldcall-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Locker grants short exclusive leases on one (session, action) pair so that
// two overlapping requests never run the same save.
type Locker interface {
	// Acquire returns ok=false when the lease is held. release is only
	// non-nil when ok is true.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// RedisLocker shares leases across replicas.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token, ok, err := utils.AcquireActionLock(ctx, l.rdb, key, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		// Released on a fresh context: the request may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseActionLock(ctx, l.rdb, key, token)
	}
	return release, true, nil
}

// LocalLocker holds leases in process memory. Used for single-replica
// deployments and tests.
type LocalLocker struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{now: time.Now, leases: map[string]time.Time{}}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, held := l.leases[key]; held && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.leases[key] = until
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.leases[key] == until {
			delete(l.leases, key)
		}
	}, true, nil
}
