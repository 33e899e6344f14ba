package repositories

import (
	"context"

	"qosmon/internal/core/ports"
	"qosmon/internal/infrastructure/reliability"
	"qosmon/internal/infrastructure/repositories/memory"
	redisrepo "qosmon/internal/infrastructure/repositories/redis"
	"qosmon/pkg/circuitbreaker"
	"qosmon/pkg/config"
	"qosmon/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	realtime    *reliability.RealtimeRepositoryWrapper
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory. An unreachable Redis
// is not fatal: the factory falls back to memory repositories.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:      cfg,
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		retryCfg := retry.DefaultConfig()
		if cfg.Redis.ConnectAttempts > 0 {
			retryCfg.MaxAttempts = cfg.Redis.ConnectAttempts
		}

		client, err := redisrepo.NewRedisClient(redisrepo.ClientOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Retry:    retryCfg,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis realtime repository")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateHistoryRepository creates the per-session history buffer. History is
// process-local.
func (f *RepositoryFactory) CreateHistoryRepository() ports.HistoryRepository {
	return memory.NewMemoryHistoryRepository(f.cfg.Monitoring.HistoryCapacity)
}

// CreateRealtimeRepository creates the latest-snapshot store (Redis behind a
// circuit breaker, or memory with fallback)
func (f *RepositoryFactory) CreateRealtimeRepository() ports.RealtimeRepository {
	if f.useRedis && f.redisClient != nil {
		if f.realtime == nil {
			f.realtime = reliability.NewRealtimeRepositoryWrapper(
				redisrepo.NewRedisRealtimeRepository(f.redisClient),
				circuitbreaker.DefaultConfig(),
				f.cfg.Redis.CallTimeout,
				f.logger,
			)
		}
		return f.realtime
	}
	return memory.NewMemoryRealtimeRepository()
}

// RedisClient returns the shared client, or nil when running on memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// RealtimeState reports the realtime store breaker state. Memory stores are
// always closed.
func (f *RepositoryFactory) RealtimeState() circuitbreaker.State {
	if f.realtime == nil {
		return circuitbreaker.StateClosed
	}
	return f.realtime.State()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
