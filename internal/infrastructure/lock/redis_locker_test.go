package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLocker(client, "", zap.NewNop())
	l.pollInterval = 5 * time.Millisecond
	return l, mr
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	l, mr := newTestRedisLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "subscription:1", time.Minute, 0)
	require.NoError(t, err)
	assert.True(t, mr.Exists(DefaultKeyPrefix+"subscription:1"))
	assert.Equal(t, time.Minute, mr.TTL(DefaultKeyPrefix+"subscription:1"))

	_, err = l.Acquire(ctx, "subscription:1", time.Minute, 20*time.Millisecond)
	assert.ErrorIs(t, err, shared.ErrLockNotAcquired)

	release()
	assert.False(t, mr.Exists(DefaultKeyPrefix+"subscription:1"))

	release, err = l.Acquire(ctx, "subscription:1", time.Minute, 0)
	require.NoError(t, err)
	release()
}

func TestRedisLocker_DistinctKeysDoNotBlock(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "a", time.Minute, 0)
	require.NoError(t, err)
	r2, err := l.Acquire(ctx, "b", time.Minute, 0)
	require.NoError(t, err)
	r1()
	r2()
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", time.Minute, 0)
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	second, err := l.Acquire(ctx, "k", time.Minute, 2*time.Second)
	require.NoError(t, err)
	second()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	l, mr := newTestRedisLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Second, 0)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "k", time.Minute, 0)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists(DefaultKeyPrefix+"k"), "stale release must not drop the new holder's lock")
	fresh()
	assert.False(t, mr.Exists(DefaultKeyPrefix+"k"))
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	l, _ := newTestRedisLocker(t)

	release, err := l.Acquire(context.Background(), "k", time.Minute, 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k", time.Minute, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLocker_Errors(t *testing.T) {
	l, mr := newTestRedisLocker(t)

	_, err := l.Acquire(context.Background(), "k", 0, 0)
	assert.Error(t, err)

	mr.Close()
	_, err = l.Acquire(context.Background(), "k", time.Minute, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrLockNotAcquired)
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "shared", time.Minute, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}
