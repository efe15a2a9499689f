package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire times out while held", func(t *testing.T) {
		l := NewMemoryLocker()
		release, err := l.Acquire(ctx, "k", time.Minute, 0)
		require.NoError(t, err)

		_, err = l.Acquire(ctx, "k", time.Minute, 10*time.Millisecond)
		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)

		release()
		assert.Equal(t, 0, l.Held())
	})

	t.Run("release is idempotent", func(t *testing.T) {
		l := NewMemoryLocker()
		release, err := l.Acquire(ctx, "k", time.Minute, 0)
		require.NoError(t, err)
		release()
		release()

		again, err := l.Acquire(ctx, "k", time.Minute, 0)
		require.NoError(t, err)
		again()
	})

	t.Run("waiter gets the lock after release", func(t *testing.T) {
		l := NewMemoryLocker()
		release, err := l.Acquire(ctx, "k", time.Minute, 0)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			r, err := l.Acquire(ctx, "k", time.Minute, time.Second)
			if err == nil {
				r()
			}
			done <- err
		}()
		time.Sleep(10 * time.Millisecond)
		release()
		assert.NoError(t, <-done)
		assert.Equal(t, 0, l.Held())
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := NewMemoryLocker()
		release, err := l.Acquire(ctx, "k", time.Minute, 0)
		require.NoError(t, err)
		defer release()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = l.Acquire(cctx, "k", time.Minute, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("serialises holders of one key", func(t *testing.T) {
		l := NewMemoryLocker()
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := l.Acquire(ctx, "k", time.Minute, 5*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				counter++
				release()
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
		assert.Equal(t, 0, l.Held())
	})
}

func TestNewLocker(t *testing.T) {
	cfg := &config.Config{}
	assert.IsType(t, &MemoryLocker{}, NewLocker(cfg, nil, zap.NewNop()))

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	assert.IsType(t, &RedisLocker{}, NewLocker(cfg, client, zap.NewNop()))
}
