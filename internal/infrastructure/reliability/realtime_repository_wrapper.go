package reliability

import (
	"context"
	"errors"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
	"qosmon/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// RealtimeRepositoryWrapper puts a circuit breaker in front of a realtime
// store so an unreachable backend fails fast instead of stalling every
// monitoring tick for the client timeout.
type RealtimeRepositoryWrapper struct {
	repo           ports.RealtimeRepository
	circuitBreaker *circuitbreaker.CircuitBreaker
	callTimeout    time.Duration
	logger         *zap.SugaredLogger
}

func NewRealtimeRepositoryWrapper(
	repo ports.RealtimeRepository,
	cbConfig circuitbreaker.Config,
	callTimeout time.Duration,
	logger *zap.SugaredLogger,
) *RealtimeRepositoryWrapper {
	wrapper := &RealtimeRepositoryWrapper{
		repo:           repo,
		circuitBreaker: circuitbreaker.New(cbConfig),
		callTimeout:    callTimeout,
		logger:         logger,
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("realtime store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *RealtimeRepositoryWrapper) StoreLatest(ctx context.Context, snapshot *domain.MetricsSnapshot, ttl time.Duration) error {
	return w.circuitBreaker.Execute(ctx, func() error {
		callCtx, cancel := w.withTimeout(ctx)
		defer cancel()
		return w.repo.StoreLatest(callCtx, snapshot, ttl)
	})
}

func (w *RealtimeRepositoryWrapper) GetLatest(ctx context.Context, sessionID domain.SessionID) (*domain.MetricsSnapshot, error) {
	missing := false

	snapshot, err := circuitbreaker.ExecuteValue(ctx, w.circuitBreaker, func() (*domain.MetricsSnapshot, error) {
		callCtx, cancel := w.withTimeout(ctx)
		defer cancel()

		snapshot, err := w.repo.GetLatest(callCtx, sessionID)
		// A miss is a healthy answer.
		if errors.Is(err, domain.ErrNoMetrics) {
			missing = true
			return nil, nil
		}
		return snapshot, err
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, domain.ErrNoMetrics
	}
	return snapshot, nil
}

func (w *RealtimeRepositoryWrapper) Delete(ctx context.Context, sessionID domain.SessionID) error {
	return w.circuitBreaker.Execute(ctx, func() error {
		callCtx, cancel := w.withTimeout(ctx)
		defer cancel()
		return w.repo.Delete(callCtx, sessionID)
	})
}

// State reports the breaker state for health checks.
func (w *RealtimeRepositoryWrapper) State() circuitbreaker.State {
	return w.circuitBreaker.GetState()
}

func (w *RealtimeRepositoryWrapper) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.callTimeout)
}

var _ ports.RealtimeRepository = (*RealtimeRepositoryWrapper)(nil)
