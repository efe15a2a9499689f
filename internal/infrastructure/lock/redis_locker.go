package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces lock keys in a shared Redis
const DefaultKeyPrefix = "ams:lock:"

// defaultPollInterval is how often a waiting Acquire retries SET NX
const defaultPollInterval = 25 * time.Millisecond

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is left alone
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements shared.Locker with SET NX PX and a random token.
// It serialises work on one subscription across every process sharing the
// Redis instance.
type RedisLocker struct {
	client       redis.UniversalClient
	keyPrefix    string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewRedisLocker creates a RedisLocker
func NewRedisLocker(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:       client,
		keyPrefix:    keyPrefix,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

// Acquire takes the lock for key, polling until wait elapses
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}
	fullKey := l.keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.releaseFunc(fullKey, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", shared.ErrLockNotAcquired, key)
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) releaseFunc(fullKey, token string) func() {
	return func() {
		// the caller's ctx may already be cancelled; release must still run
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.logger.Warn("Failed to release lock", zap.String("key", fullKey), zap.Error(err))
		}
	}
}

var _ shared.Locker = (*RedisLocker)(nil)
