package lock

import (
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewLocker returns a Redis-backed locker when a client is available and an
// in-process one otherwise. Production deployments always run with Redis,
// which config validation enforces.
func NewLocker(cfg *config.Config, client redis.UniversalClient, logger *zap.Logger) shared.Locker {
	if client != nil {
		logger.Info("Using Redis subscription locks")
		return NewRedisLocker(client, DefaultKeyPrefix, logger)
	}
	logger.Info("Using in-process subscription locks", zap.String("env", cfg.App.Env))
	return NewMemoryLocker()
}
