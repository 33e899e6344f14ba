package monitoring

import (
	"context"
	"fmt"
	"time"

	"qosmon/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddBreakerCheck fails while the named circuit breaker is open.
func (h *HealthChecker) AddBreakerCheck(name string, state func() circuitbreaker.State) {
	h.AddCheck(name, func(ctx context.Context) error {
		if s := state(); s == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker is %s", s)
		}
		return nil
	}, 0)
}

// AddMonitoringCheck fails once the monitoring service can no longer accept
// sessions.
func (h *HealthChecker) AddMonitoringCheck(accepting func() bool) {
	h.AddCheck("monitoring", func(ctx context.Context) error {
		if !accepting() {
			return fmt.Errorf("monitoring service is shut down")
		}
		return nil
	}, 0)
}
