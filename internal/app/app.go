// Package app assembles the monitoring service with its stores, exporters,
// event fan-out and HTTP surface. Hosts embed it and start monitoring on the
// service it exposes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
	"qosmon/internal/core/services"
	httphandlers "qosmon/internal/handlers/http"
	"qosmon/internal/infrastructure/distributed"
	"qosmon/internal/infrastructure/middleware"
	"qosmon/internal/infrastructure/monitoring"
	"qosmon/internal/infrastructure/repositories"
	feed "qosmon/internal/infrastructure/signal"
	"qosmon/pkg/config"
	"qosmon/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App is one assembled qosmon instance.
type App struct {
	cfg       *config.Config
	logger    *zap.SugaredLogger
	startTime time.Time

	repos      *repositories.RepositoryFactory
	monitoring *services.MonitoringService
	feed       *feed.FeedServer
	health     *monitoring.HealthChecker
	router     *gin.Engine

	detachFeed func()
	eventBus   *distributed.EventBus
	stopRelay  func()
	stopBus    context.CancelFunc
	busDone    chan struct{}
}

// New wires an App from cfg. registry receives the Prometheus collectors and
// backs the metrics endpoint; nil uses the process-wide default registry.
func New(cfg *config.Config, zapLogger *zap.Logger, registry *prometheus.Registry) (*App, error) {
	log := zapLogger.Sugar()

	repos, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    log,
		startTime: time.Now(),
		repos:     repos,
		stopBus:   func() {},
	}

	var collector *monitoring.PrometheusCollector
	metricsHandler := promhttp.Handler()
	if cfg.Prometheus.Enabled {
		if registry != nil {
			collector = monitoring.NewPrometheusCollector(registry)
			metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		} else {
			collector = monitoring.NewPrometheusCollector(nil)
		}
	}

	a.monitoring = services.NewMonitoringService(
		services.MonitoringConfig{
			DefaultInterval: cfg.Monitoring.Interval,
			TickTimeout:     cfg.Monitoring.TickTimeout,
			RealtimeTTL:     cfg.Monitoring.RealtimeTTL,
			AlertBufferSize: cfg.Monitoring.AlertBuffer,
		},
		cfg.Thresholds,
		repos.CreateHistoryRepository(),
		repos.CreateRealtimeRepository(),
		recorderOrNil(collector),
		log,
	)

	a.feed = feed.NewFeedServer(feed.FeedConfig{
		PingInterval:  cfg.Feed.PingInterval,
		PongTimeout:   cfg.Feed.PongTimeout,
		WriteTimeout:  cfg.Feed.WriteTimeout,
		SendQueueSize: cfg.Feed.SendQueueSize,
	}, log)
	a.detachFeed = a.feed.Attach(a.monitoring)

	a.health = monitoring.NewHealthChecker()
	a.health.AddMonitoringCheck(a.monitoring.Accepting)
	if client := repos.RedisClient(); client != nil {
		a.health.AddRedisCheck(client, 2*time.Second)
		a.health.AddBreakerCheck("realtime_store", repos.RealtimeState)
	}

	if cfg.Redis.PublishEvents && repos.RedisClient() != nil {
		a.startEventBus()
	}

	a.router = a.buildRouter(zapLogger, metricsHandler)
	return a, nil
}

// startEventBus relays local events to other instances and hands their events
// to local feed clients.
func (a *App) startEventBus() {
	a.eventBus = distributed.NewEventBus(a.repos.RedisClient(), "", a.logger)
	a.stopRelay = a.eventBus.Relay(a.monitoring)
	a.health.AddBreakerCheck("event_bus", a.eventBus.BreakerState)

	ctx, cancel := context.WithCancel(context.Background())
	a.stopBus = cancel
	a.busDone = make(chan struct{})
	go func() {
		defer close(a.busDone)
		err := a.eventBus.Subscribe(ctx, func(ev *distributed.Event) error {
			return deliverRemote(a.feed, ev)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Errorw("distributed event subscription ended", "error", err)
		}
	}()
	a.logger.Infow("distributed event bus enabled", "instance_id", a.eventBus.InstanceID())
}

func (a *App) buildRouter(zapLogger *zap.Logger, metricsHandler http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(a.logger),
		middleware.TracingMiddleware(),
		middleware.RequestLoggingMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(a.logger),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    monitoring.StatusHealthy,
			"timestamp": time.Now(),
			"uptime":    time.Since(a.startTime).String(),
			"sessions":  len(a.monitoring.ActiveSessions()),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := a.health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if a.cfg.Prometheus.Enabled {
		router.GET(a.cfg.Prometheus.Path, gin.WrapH(metricsHandler))
		a.logger.Infow("Prometheus metrics enabled", "path", a.cfg.Prometheus.Path)
	}

	api := router.Group("/")
	api.Use(middleware.NewHTTPRateLimitMiddleware(a.cfg))
	httphandlers.NewQoSHandler(a.monitoring).SetupRoutes(api)

	router.GET("/ws/sessions/:id", middleware.NewFeedRateLimitMiddleware(a.cfg), func(c *gin.Context) {
		a.feed.ServeSession(c.Writer, c.Request, domain.SessionID(c.Param("id")))
	})
	return router
}

// Monitoring returns the service hosts start and stop sessions on.
func (a *App) Monitoring() ports.MonitoringService {
	return a.monitoring
}

// Handler serves the health, metrics, query and feed routes.
func (a *App) Handler() http.Handler {
	return a.router
}

// Shutdown stops every session, then the feed, the event bus and the stores.
// The HTTP server in front of Handler should be shut down first.
func (a *App) Shutdown(ctx context.Context) error {
	// Stop every session first so no tick publishes into a closed feed.
	a.monitoring.Destroy()
	waitErr := a.monitoring.Wait(ctx)
	if waitErr != nil {
		a.logger.Warnw("monitoring sessions did not stop in time", "error", waitErr)
	}

	a.detachFeed()
	a.feed.Close()

	a.stopBus()
	if a.eventBus != nil {
		a.stopRelay()
		if err := a.eventBus.Close(); err != nil {
			a.logger.Warnw("error closing event bus", "error", err)
		}
		select {
		case <-a.busDone:
		case <-ctx.Done():
		}
	}

	if err := a.repos.Close(); err != nil {
		a.logger.Errorw("error closing repository factory", "error", err)
		return err
	}
	return waitErr
}

// deliverRemote forwards events from other instances to local feed clients.
func deliverRemote(feedServer *feed.FeedServer, ev *distributed.Event) error {
	switch ev.Type {
	case domain.EventMetrics:
		metrics, err := ev.Metrics()
		if err != nil {
			return err
		}
		feedServer.HandleMetrics(metrics)
	case domain.EventAlerts:
		alerts, err := ev.Alerts()
		if err != nil {
			return err
		}
		feedServer.HandleAlerts(alerts)
	}
	return nil
}

// recorderOrNil avoids handing the service a typed nil interface.
func recorderOrNil(c *monitoring.PrometheusCollector) ports.QoSMetricsRecorder {
	if c == nil {
		return nil
	}
	return c
}
