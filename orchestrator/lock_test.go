package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client), mr
}

func TestLockAcquireAndContend(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := SequenceLockKey(42)

	token, ok, err := locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	// A second holder cannot take the lease while it is held
	_, ok, err = locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, token))

	_, ok, err = locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockReleaseWithWrongTokenIsNoOp(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := SequenceLockKey(42)

	token, ok, err := locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale holder releasing with an old token must not break the
	// current holder's lease
	require.NoError(t, locker.Release(ctx, key, "stale-token"))

	_, ok, err = locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, token))
}

func TestLockExpiresOnItsOwn(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := SequenceLockKey(42)

	_, ok, err := locker.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	// A holder that died mid-tick does not wedge the sequence
	_, ok, err = locker.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockKeysAreScopedPerSequence(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.Acquire(ctx, SequenceLockKey(1), 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.Acquire(ctx, SequenceLockKey(2), 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
