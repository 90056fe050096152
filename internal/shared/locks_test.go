package shared

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLockFixture(t *testing.T) (*RunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRunLock(client), mr
}

func TestRunLockMutualExclusion(t *testing.T) {
	lock, _ := newLockFixture(t)
	ctx := context.Background()

	lease, err := lock.Acquire(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	// Second acquisition is refused without error.
	second, err := lock.Acquire(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.Nil(t, second)

	// Different jobs never contend.
	other, err := lock.Acquire(ctx, "restore", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, other)

	require.NoError(t, lease.Release(ctx))
	third, err := lock.Acquire(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, third)
}

func TestRunLockLeaseExpires(t *testing.T) {
	lock, mr := newLockFixture(t)
	ctx := context.Background()

	lease, err := lock.Acquire(ctx, "reconcile", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	mr.FastForward(2 * time.Second)

	// The dead holder's lease is gone, a new run can start.
	next, err := lock.Acquire(ctx, "reconcile", time.Second)
	require.NoError(t, err)
	require.NotNil(t, next)
}

func TestReleaseOnlyFreesOwnAcquisition(t *testing.T) {
	lock, mr := newLockFixture(t)
	ctx := context.Background()

	stale, err := lock.Acquire(ctx, "reconcile", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	// A new holder takes over after the expiry.
	current, err := lock.Acquire(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, current)

	// The stale lease releasing must not free the new holder's lock.
	require.NoError(t, stale.Release(ctx))
	blocked, err := lock.Acquire(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.Nil(t, blocked)
}

func TestAcquireRejectsBadTTL(t *testing.T) {
	lock, _ := newLockFixture(t)
	_, err := lock.Acquire(context.Background(), "reconcile", 0)
	require.Error(t, err)
}
