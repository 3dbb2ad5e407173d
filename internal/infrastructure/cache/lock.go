package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// JobLock runs a function on at most one worker at a time.
type JobLock struct {
	locker *redislock.Client
}

// NewJobLock creates a lock client on rdb.
func NewJobLock(rdb redis.UniversalClient) *JobLock {
	return &JobLock{locker: redislock.New(rdb)}
}

// TryRun runs fn while holding key for at most ttl.
// It returns false without running fn if another worker holds the lock.
func (l *JobLock) TryRun(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	lock, err := l.locker.Obtain(ctx, "stockflow:lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.Background())
	}()

	lockCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	return true, fn(lockCtx)
}
