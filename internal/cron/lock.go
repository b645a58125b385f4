package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tillpoint/epos-backend/pkg/redis"
)

// Lock coordinates exclusive cron cycles.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type obtainer interface {
	Obtain(ctx context.Context, scope, id string) (redis.Lock, error)
}

// LockerLock adapts the shared redis Locker to a single named cron lock.
type LockerLock struct {
	locker obtainer
	scope  string
	id     string

	mu   sync.Mutex
	held redis.Lock
}

// NewLockerLock builds a cron lock under scope "cron" keyed by name.
func NewLockerLock(locker obtainer, name string) (*LockerLock, error) {
	if locker == nil {
		return nil, errors.New("locker required")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	return &LockerLock{locker: locker, scope: "cron", id: name}, nil
}

// Acquire reports false when another instance holds the lock.
func (l *LockerLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held != nil {
		return false, nil
	}
	held, err := l.locker.Obtain(ctx, l.scope, l.id)
	if errors.Is(err, redis.ErrLockNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain cron lock: %w", err)
	}
	l.held = held
	return true, nil
}

// Release frees a held lock; it is a no-op otherwise.
func (l *LockerLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		return nil
	}
	err := l.held.Release(ctx)
	l.held = nil
	if err != nil {
		return fmt.Errorf("release cron lock: %w", err)
	}
	return nil
}
