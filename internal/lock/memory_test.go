package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_TimesOutWhileHeld(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "entity-1", time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = locker.Acquire(ctx, "entity-1", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	require.NoError(t, lease.Release(ctx))
	second, err := locker.Acquire(ctx, "entity-1", 30*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestMemoryLocker_KeysAreIndependent(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	a, err := locker.Acquire(ctx, "entity-a", time.Second)
	require.NoError(t, err)
	b, err := locker.Acquire(ctx, "entity-b", 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}

func TestMemoryLocker_DoubleReleaseFails(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), ErrNotHeld)
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	locker := NewMemoryLocker()
	lease, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer lease.Release(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithLock(ctx, locker, "k", time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = WithLock(ctx, locker, "k", 10*time.Millisecond, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = WithLock(ctx, locker, "k", time.Second, func(context.Context) error { panic("unexpected") })
	})

	err := WithLock(ctx, locker, "k", 10*time.Millisecond, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithLock_MutualExclusion(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, locker, "shared", 5*time.Second, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}
