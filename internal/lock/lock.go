// Package lock provides named mutual-exclusion locks with bounded waits.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired is returned when the lock is still held by someone else after the timeout.
	ErrNotAcquired = errors.New("lock: not acquired within timeout")
	// ErrNotHeld is returned when releasing a lease that no longer owns the lock.
	ErrNotHeld = errors.New("lock: lease no longer held")
)

// Locker hands out leases on named locks.
type Locker interface {
	// Acquire waits at most timeout for the named lock.
	Acquire(ctx context.Context, name string, timeout time.Duration) (Lease, error)
}

// Lease is a held lock. Release must be called exactly once.
type Lease interface {
	Release(ctx context.Context) error
}

// WithLock runs fn while holding the named lock and releases it on every exit path.
func WithLock(ctx context.Context, locker Locker, name string, timeout time.Duration, fn func(ctx context.Context) error) (err error) {
	lease, err := locker.Acquire(ctx, name, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()
	return fn(ctx)
}
