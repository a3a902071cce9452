package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/realty/internal/domain/shared"
	"github.com/erp/realty/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrRedisRequired is returned when event.require_redis is set and Redis
// cannot be reached
var ErrRedisRequired = errors.New("redis is required for commission idempotency")

// OpenIdempotencyStore returns the store that deduplicates commission
// deliveries. Redis is preferred; without it the engine falls back to
// process memory unless event.require_redis is set.
func OpenIdempotencyStore(ctx context.Context, redisCfg config.RedisConfig, eventCfg config.EventConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	store, err := NewRedisIdempotencyStore(ctx, redisCfg)
	if err == nil {
		logger.Info("using Redis idempotency store", zap.String("addr", redisCfg.Addr()))
		return store, nil
	}
	if eventCfg.RequireRedis {
		return nil, fmt.Errorf("%w: %w", ErrRedisRequired, err)
	}

	logger.Warn("Redis unavailable, commission deliveries are deduplicated in process memory only",
		zap.String("addr", redisCfg.Addr()),
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
