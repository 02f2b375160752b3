package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockIsExclusive(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	a := NewRedisLock(client, "", time.Minute)
	b := NewRedisLock(client, "", time.Minute)

	release, ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, release(ctx))

	_, ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "lock should be free after release")
}

func TestRedisLockExpires(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	lock := NewRedisLock(client, "tick", 5*time.Second)

	_, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	_, ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease should be reclaimable")
}

// A holder whose lease expired must not delete the next holder's lease.
func TestRedisLockReleaseChecksToken(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	lock := NewRedisLock(client, "tick", 5*time.Second)

	staleRelease, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)
	_, ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, staleRelease(ctx))
	assert.True(t, mr.Exists("tick"), "current holder's lease must survive a stale release")
}

func TestRedisLockReportsConnectionErrors(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	_, ok, err := NewRedisLock(client, "tick", time.Second).TryAcquire(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
