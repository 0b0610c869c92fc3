package service

import (
	"context"

	"github.com/nutrition-bot/internal/guard"
)

type redisLocker struct {
	lock *guard.UserLock
}

// NewRedisLocker adapts a guard.UserLock to UserLocker
func NewRedisLocker(lock *guard.UserLock) UserLocker {
	return redisLocker{lock: lock}
}

func (l redisLocker) Acquire(ctx context.Context, userID int64) (Lease, error) {
	lease, err := l.lock.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lease, nil
}
