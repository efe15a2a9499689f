package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredisClient(t)
	store := NewRedisIdempotencyStore(client, "")

	ok, err := store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(DefaultIdempotencyKeyPrefix+"event-1"))

	ok, err = store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Hour)
	done, err := store.IsProcessed(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, done)

	assert.NoError(t, store.Close())
	assert.NoError(t, client.Ping(ctx).Err(), "store must not close the shared client")
}

func TestRedisIdempotencyStore_ServerDown(t *testing.T) {
	mr, client := newMiniredisClient(t)
	store := NewRedisIdempotencyStore(client, "test:")
	mr.Close()

	_, err := store.MarkProcessed(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{Enabled: true, Host: mr.Host(), Port: atoiPort(t, mr.Port())}

	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	mr.Close()
	_, err = NewRedisClient(cfg)
	assert.Error(t, err)
}

func TestNewIdempotencyStore(t *testing.T) {
	_, client := newMiniredisClient(t)

	store, err := NewIdempotencyStore(&config.Config{}, client, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &RedisIdempotencyStore{}, store)

	store, err = NewIdempotencyStore(&config.Config{}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	_ = store.Close()

	_, err = NewIdempotencyStore(&config.Config{App: config.AppConfig{Env: "production"}}, nil, zap.NewNop())
	assert.Error(t, err)
}

func atoiPort(t *testing.T, port string) int {
	t.Helper()
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return n
}
