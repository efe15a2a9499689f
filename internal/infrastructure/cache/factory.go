package cache

import (
	"fmt"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore picks the store for the deployment: Redis when a
// client is available, the in-memory store otherwise. Production
// configuration requires Redis (see config validation), so the fallback
// only happens in development.
func NewIdempotencyStore(cfg *config.Config, client redis.UniversalClient, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if client != nil {
		logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, DefaultIdempotencyKeyPrefix), nil
	}
	if cfg.IsProduction() {
		return nil, fmt.Errorf("idempotency store: Redis is required in production")
	}
	logger.Warn("Redis disabled, using in-memory idempotency store; reminders may repeat after a restart")
	return NewInMemoryIdempotencyStore(0), nil
}
