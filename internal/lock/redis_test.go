package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, WithKeyPrefix("ticket-number:"), WithTTL(10*time.Second))
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "entity-1", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("ticket-number:entity-1"))
	assert.Equal(t, 10*time.Second, mr.TTL("ticket-number:entity-1"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("ticket-number:entity-1"))
}

func TestRedisLocker_TimesOutWhileHeld(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "entity-1", time.Second)
	require.NoError(t, err)
	defer lease.Release(ctx) //nolint:errcheck

	_, err = locker.Acquire(ctx, "entity-1", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := locker.Acquire(ctx, "entity-2", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "entity-1", time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lease.Release(ctx)
	}()

	second, err := locker.Acquire(ctx, "entity-1", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestRedisLocker_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, WithTTL(time.Second))
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "entity-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "entity-1", 100*time.Millisecond)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Release(ctx), ErrNotHeld)
	assert.True(t, mr.Exists("entity-1"))
	require.NoError(t, fresh.Release(ctx))
}
