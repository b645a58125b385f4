package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockNotObtained is returned when another holder owns the lock.
var ErrLockNotObtained = errors.New("lock not obtained")

// Lock is a held distributed lock.
type Lock interface {
	Release(ctx context.Context) error
}

type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// Locker hands out short-lived, non-blocking locks keyed by scope and id.
type Locker struct {
	locks obtainer
	keys  func(scope, id string) string
	ttl   time.Duration
}

// NewLocker builds a Locker on the client's connection.
func NewLocker(c *Client, ttl time.Duration) (*Locker, error) {
	if c == nil || c.raw == nil {
		return nil, errors.New("redis client not initialized")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &Locker{
		locks: redislock.New(c.raw),
		keys:  c.LockKey,
		ttl:   ttl,
	}, nil
}

// Obtain takes the lock once without retrying. ErrLockNotObtained means a
// concurrent holder exists.
func (l *Locker) Obtain(ctx context.Context, scope, id string) (Lock, error) {
	key := l.keys(scope, id)
	lock, err := l.locks.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return heldLock{lock: lock}, nil
}

type heldLock struct {
	lock *redislock.Lock
}

// Release frees the lock. A lock that already expired is not an error.
func (h heldLock) Release(ctx context.Context) error {
	err := h.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
