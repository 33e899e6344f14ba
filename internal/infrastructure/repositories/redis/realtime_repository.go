package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

const (
	realtimeKeyPrefix  = "qos:realtime:"
	sessionIndexKey    = "qos:sessions"
	defaultRealtimeTTL = 60 * time.Second
)

// RedisRealtimeRepository keeps the latest snapshot of each session under
// qos:realtime:<session> with an expiry, so other instances and dashboards can
// read live quality without access to the in-process history.
type RedisRealtimeRepository struct {
	client *redis.Client
}

func NewRedisRealtimeRepository(client *redis.Client) *RedisRealtimeRepository {
	return &RedisRealtimeRepository{client: client}
}

func realtimeKey(id domain.SessionID) string {
	return realtimeKeyPrefix + string(id)
}

func (r *RedisRealtimeRepository) StoreLatest(ctx context.Context, snapshot *domain.MetricsSnapshot, ttl time.Duration) error {
	key := realtimeKey(snapshot.SessionID)
	ctx, span := tracing.TraceStoreOperation(ctx, "set", key)
	defer span.End()

	if ttl <= 0 {
		ttl = defaultRealtimeTTL
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.SAdd(ctx, sessionIndexKey, string(snapshot.SessionID))
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to store realtime metrics in Redis: %w", err)
	}
	return nil
}

func (r *RedisRealtimeRepository) GetLatest(ctx context.Context, sessionID domain.SessionID) (*domain.MetricsSnapshot, error) {
	key := realtimeKey(sessionID)
	ctx, span := tracing.TraceStoreOperation(ctx, "get", key)
	defer span.End()

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNoMetrics
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get realtime metrics from Redis: %w", err)
	}

	var snapshot domain.MetricsSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *RedisRealtimeRepository) Delete(ctx context.Context, sessionID domain.SessionID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, realtimeKey(sessionID))
		pipe.SRem(ctx, sessionIndexKey, string(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete realtime metrics from Redis: %w", err)
	}
	return nil
}

// ListSessions returns the sessions that currently have a live snapshot.
// Index entries whose snapshot expired are pruned on the way.
func (r *RedisRealtimeRepository) ListSessions(ctx context.Context) ([]domain.SessionID, error) {
	members, err := r.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]domain.SessionID, 0, len(members))
	for _, m := range members {
		exists, err := r.client.Exists(ctx, realtimeKeyPrefix+m).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check session %s: %w", m, err)
		}
		if exists == 0 {
			r.client.SRem(ctx, sessionIndexKey, m)
			continue
		}
		sessions = append(sessions, domain.SessionID(m))
	}
	return sessions, nil
}
