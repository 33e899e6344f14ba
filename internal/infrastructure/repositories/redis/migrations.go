package redis

import (
	"context"
	"fmt"
	"time"

	"qosmon/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = "qos:schema:version"
	schemaLockKey        = "qos:schema:lock"
	currentSchemaVersion = 2

	migrationLockTTL     = 30 * time.Second
	migrationLockTimeout = 10 * time.Second
)

// Migration represents a keyspace migration
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs all pending migrations. Instances starting together serialize
// on a Redis lock; the version is read only after the lock is held.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	lock := distributed.NewLock(client, schemaLockKey, migrationLockTTL)
	if err := lock.LockWithTimeout(ctx, migrationLockTimeout); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(context.Background()); err != nil && logger != nil {
			logger.Warnw("failed to release migration lock", "error", err)
		}
	}()

	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Infow("schema is up to date",
				"current_version", currentVersion,
				"target_version", currentSchemaVersion,
			)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}

		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Realtime snapshots written without an expiry would outlive their
			// session forever.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				iter := client.Scan(ctx, 0, realtimeKeyPrefix+"*", 100).Iterator()
				for iter.Next(ctx) {
					ttl, err := client.TTL(ctx, iter.Val()).Result()
					if err != nil {
						return err
					}
					if ttl < 0 {
						if err := client.Expire(ctx, iter.Val(), defaultRealtimeTTL).Err(); err != nil {
							return err
						}
					}
				}
				return iter.Err()
			},
		},
		{
			// The session index is rebuilt from the realtime keys that exist.
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client) error {
				iter := client.Scan(ctx, 0, realtimeKeyPrefix+"*", 100).Iterator()
				for iter.Next(ctx) {
					id := iter.Val()[len(realtimeKeyPrefix):]
					if err := client.SAdd(ctx, sessionIndexKey, id).Err(); err != nil {
						return err
					}
				}
				return iter.Err()
			},
		},
	}
}
