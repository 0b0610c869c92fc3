// Package guard provides Redis-backed coordination between concurrent
// webhook invocations: a per-user analysis lock and update de-duplication.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefixes.
const (
	KeyPrefixLock   = "analysis:lock:"
	KeyPrefixUpdate = "tg:update:"
)

// ErrLockHeld is returned when another invocation holds the user's lock.
var ErrLockHeld = errors.New("analysis already in progress for user")

// releaseScript deletes the lock only if it still carries our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// UserLock serializes analyses per user across processes.
type UserLock struct {
	redis redis.Cmdable
	ttl   time.Duration
}

// NewUserLock creates a lock manager. ttl bounds how long a crashed holder
// can block the user.
func NewUserLock(client redis.Cmdable, ttl time.Duration) *UserLock {
	return &UserLock{redis: client, ttl: ttl}
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	lock  *UserLock
	key   string
	token string
}

// Acquire takes the user's lock or returns ErrLockHeld.
func (l *UserLock) Acquire(ctx context.Context, userID int64) (*Lease, error) {
	key := KeyPrefixLock + strconv.FormatInt(userID, 10)
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{lock: l, key: key, token: token}, nil
}

// Release drops the lock if it is still ours.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, le.lock.redis, []string{le.key}, le.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %s: %w", le.key, err)
	}
	return nil
}

// DeliveryDeduper remembers processed Telegram update ids for a while so
// retried webhook deliveries are acknowledged without being handled twice.
type DeliveryDeduper struct {
	redis redis.Cmdable
	ttl   time.Duration
}

// NewDeliveryDeduper creates a deduper keeping ids for ttl.
func NewDeliveryDeduper(client redis.Cmdable, ttl time.Duration) *DeliveryDeduper {
	return &DeliveryDeduper{redis: client, ttl: ttl}
}

// FirstDelivery reports whether this is the first time the update is seen
// for botID. On Redis errors it returns true with the error so the caller can
// still handle the update.
func (d *DeliveryDeduper) FirstDelivery(ctx context.Context, botID string, updateID int64) (bool, error) {
	key := KeyPrefixUpdate + botID + ":" + strconv.FormatInt(updateID, 10)

	ok, err := d.redis.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("failed to record update %s: %w", key, err)
	}
	return ok, nil
}
