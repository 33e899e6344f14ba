package redis

import (
	"context"
	"fmt"
	"time"

	"qosmon/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ClientOptions configures the connection pool.
type ClientOptions struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	Retry    retry.Config
}

// NewRedisClient connects with retries and runs pending migrations.
func NewRedisClient(opts ClientOptions, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	retryCfg := opts.Retry
	if logger != nil {
		retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warnw("Redis not reachable, retrying",
				"address", opts.Address,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
	}

	err := retry.Retry(ctx, retryCfg, func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		defer pingCancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := Migrate(ctx, client, logger); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", opts.Address,
			"db", opts.DB,
			"pool_size", opts.PoolSize,
		)
	}

	return client, nil
}

// CloseRedisClient closes the Redis client connection
func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
