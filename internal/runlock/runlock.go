package runlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"platewatch/internal/config"
)

// ErrAlreadyRunning means another run holds the lock; the caller should
// skip this run rather than wait.
var ErrAlreadyRunning = errors.New("another run is in progress")

const lockKey = "platewatch:run"

// Lock is a held run lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes engine runs. Concurrent runs would break the
// replace-not-accumulate contract on inactivity partitions, so a run that
// cannot obtain the lock is skipped outright.
type Locker interface {
	Obtain(ctx context.Context, ttl time.Duration) (Lock, error)
}

// RedisLocker coordinates runs across processes through redis.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(cfg config.RedisConfig) *RedisLocker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, err
	}
	return redisLock{lock: lock}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (l redisLock) Release(ctx context.Context) error {
	return l.lock.Release(ctx)
}

// LocalLocker serializes runs within a single process. Used when redis is
// not configured, which is fine for single-binary deployments.
type LocalLocker struct {
	mu sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) Obtain(ctx context.Context, ttl time.Duration) (Lock, error) {
	if !l.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	return localLock{mu: &l.mu}, nil
}

type localLock struct {
	mu *sync.Mutex
}

func (l localLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}
