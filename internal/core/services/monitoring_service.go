package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
	"qosmon/pkg/tracing"

	"go.uber.org/zap"
)

// MonitoringConfig tunes the per-session monitors.
type MonitoringConfig struct {
	DefaultInterval time.Duration
	// TickTimeout bounds one statistics fetch. Zero disables the bound.
	TickTimeout     time.Duration
	RealtimeTTL     time.Duration
	AlertBufferSize int
}

func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		DefaultInterval: time.Second,
		TickTimeout:     5 * time.Second,
		RealtimeTTL:     60 * time.Second,
		AlertBufferSize: 50,
	}
}

type monitor struct {
	cancel     context.CancelFunc
	generation uint64
	interval   time.Duration
}

// MonitoringService owns one ticker goroutine per monitored session and runs
// the sample, delta, score, threshold, record and publish pipeline on every
// tick. A failing tick is logged and skipped; the ticker keeps running.
type MonitoringService struct {
	cfg        MonitoringConfig
	sampler    *StatsSampler
	scorer     *QualityService
	thresholds *ThresholdService
	reports    *ReportService
	bus        *EventBus

	history  ports.HistoryRepository
	realtime ports.RealtimeRepository
	recorder ports.QoSMetricsRecorder
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	monitors   map[domain.SessionID]*monitor
	generation uint64
	destroyed  bool
	wg         sync.WaitGroup
	// stored holds the sessions with an entry in the realtime store.
	stored map[domain.SessionID]struct{}

	alertsMu     sync.RWMutex
	recentAlerts map[domain.SessionID][]domain.Alert
}

// NewMonitoringService wires the pipeline. realtime and recorder are
// optional.
func NewMonitoringService(
	cfg MonitoringConfig,
	thresholds domain.QualityThresholds,
	history ports.HistoryRepository,
	realtime ports.RealtimeRepository,
	recorder ports.QoSMetricsRecorder,
	logger *zap.SugaredLogger,
) *MonitoringService {
	defaults := DefaultMonitoringConfig()
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = defaults.DefaultInterval
	}
	if cfg.AlertBufferSize <= 0 {
		cfg.AlertBufferSize = defaults.AlertBufferSize
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &MonitoringService{
		cfg:          cfg,
		sampler:      NewStatsSampler(),
		scorer:       NewQualityService(thresholds),
		thresholds:   NewThresholdService(thresholds),
		reports:      NewReportService(thresholds),
		bus:          NewEventBus(logger),
		history:      history,
		realtime:     realtime,
		recorder:     recorder,
		logger:       logger,
		monitors:     make(map[domain.SessionID]*monitor),
		stored:       make(map[domain.SessionID]struct{}),
		recentAlerts: make(map[domain.SessionID][]domain.Alert),
	}
}

// Thresholds returns the thresholds the service scores and alerts against.
func (s *MonitoringService) Thresholds() domain.QualityThresholds {
	return s.scorer.GetThresholds()
}

// StartMonitoring installs a repeating sampler for the session, replacing any
// sampler already running for it. intervalMs <= 0 selects the configured
// default interval.
func (s *MonitoringService) StartMonitoring(sessionID domain.SessionID, source ports.StatsSource, intervalMs int) error {
	if sessionID == "" {
		s.logger.Warnw("cannot start monitoring without a session id")
		return domain.ErrSessionIDRequired
	}
	if source == nil {
		s.logger.Warnw("cannot start monitoring without a stats source", "session_id", sessionID)
		return domain.ErrStatsSourceRequired
	}

	interval := time.Duration(intervalMs) * time.Millisecond
	if interval <= 0 {
		interval = s.cfg.DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		s.logger.Warnw("monitoring service already destroyed", "session_id", sessionID)
		return domain.ErrControllerDestroyed
	}

	existing, restarting := s.monitors[sessionID]
	if restarting {
		existing.cancel()
	}

	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{
		cancel:     cancel,
		generation: s.generation,
		interval:   interval,
	}
	s.monitors[sessionID] = m

	s.wg.Add(1)
	go s.run(ctx, sessionID, source, m)

	if !restarting {
		s.recorder.SessionStarted(sessionID)
	}
	s.logger.Infow("monitoring started",
		"session_id", sessionID,
		"interval", interval,
		"restart", restarting,
	)
	return nil
}

// StopMonitoring cancels the session's sampler. Recorded history is kept.
// Stopping a session that is not monitored is a no-op.
func (s *MonitoringService) StopMonitoring(sessionID domain.SessionID) {
	s.mu.Lock()
	m, exists := s.monitors[sessionID]
	if exists {
		m.cancel()
		delete(s.monitors, sessionID)
	}
	s.mu.Unlock()

	if !exists {
		return
	}
	s.recorder.SessionStopped(sessionID)
	s.logger.Infow("monitoring stopped", "session_id", sessionID)
}

// Destroy stops every sampler and discards all history, alerts, latest
// snapshots and subscribers. The service cannot be restarted afterwards.
func (s *MonitoringService) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	stopped := make([]domain.SessionID, 0, len(s.monitors))
	for id, m := range s.monitors {
		m.cancel()
		stopped = append(stopped, id)
	}
	s.monitors = make(map[domain.SessionID]*monitor)
	stored := make([]domain.SessionID, 0, len(s.stored))
	for id := range s.stored {
		stored = append(stored, id)
	}
	s.stored = make(map[domain.SessionID]struct{})
	s.mu.Unlock()

	for _, id := range stopped {
		s.recorder.SessionStopped(id)
	}

	s.history.ClearAll()
	s.alertsMu.Lock()
	s.recentAlerts = make(map[domain.SessionID][]domain.Alert)
	s.alertsMu.Unlock()
	s.bus.Reset()

	for _, id := range stored {
		s.deleteRealtime(id)
	}

	s.logger.Infow("monitoring service destroyed", "stopped_sessions", len(stopped))
}

// Wait blocks until every sampler goroutine has exited or ctx is done. It is
// meant to follow Destroy during shutdown.
func (s *MonitoringService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Accepting reports whether StartMonitoring can still succeed.
func (s *MonitoringService) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed
}

func (s *MonitoringService) IsMonitoring(sessionID domain.SessionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.monitors[sessionID]
	return exists
}

func (s *MonitoringService) ActiveSessions() []domain.SessionID {
	s.mu.Lock()
	ids := make([]domain.SessionID, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClearHistory drops the recorded history, alerts and latest snapshot of one
// session. A running sampler keeps going and starts a fresh history.
func (s *MonitoringService) ClearHistory(sessionID domain.SessionID) {
	// Held across both clears so a tick never derives deltas from a
	// snapshot that is being discarded.
	s.mu.Lock()
	s.history.Clear(sessionID)
	s.alertsMu.Lock()
	delete(s.recentAlerts, sessionID)
	s.alertsMu.Unlock()
	delete(s.stored, sessionID)
	s.mu.Unlock()

	s.deleteRealtime(sessionID)
}

func (s *MonitoringService) deleteRealtime(sessionID domain.SessionID) {
	if s.realtime == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.realtime.Delete(ctx, sessionID); err != nil {
		s.logger.Warnw("failed to delete realtime metrics",
			"session_id", sessionID,
			"error", err,
		)
	}
}

func (s *MonitoringService) GetMetricsHistory(sessionID domain.SessionID) []*domain.MetricsSnapshot {
	return s.history.GetHistory(sessionID)
}

func (s *MonitoringService) GetAverageMetrics(sessionID domain.SessionID) (*domain.AverageMetrics, bool) {
	return ComputeAverages(s.history.GetHistory(sessionID))
}

func (s *MonitoringService) GenerateQualityReport(sessionID domain.SessionID) (*domain.QualityReport, bool) {
	return s.reports.Generate(sessionID, s.history.GetHistory(sessionID))
}

func (s *MonitoringService) RecentAlerts(sessionID domain.SessionID) []domain.Alert {
	s.alertsMu.RLock()
	defer s.alertsMu.RUnlock()

	alerts := s.recentAlerts[sessionID]
	out := make([]domain.Alert, len(alerts))
	copy(out, alerts)
	return out
}

// GetRealtimeMetrics returns the latest snapshot of the session. Without a
// realtime store it falls back to the newest history entry.
func (s *MonitoringService) GetRealtimeMetrics(ctx context.Context, sessionID domain.SessionID) (*domain.MetricsSnapshot, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionIDRequired
	}
	if !s.Accepting() {
		return nil, domain.ErrControllerDestroyed
	}
	if s.realtime != nil {
		snapshot, err := s.realtime.GetLatest(ctx, sessionID)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, domain.ErrNoMetrics) {
			s.logger.Warnw("realtime store unavailable, using history",
				"session_id", sessionID,
				"error", err,
			)
		}
	}

	latest, ok := s.history.GetPrevious(sessionID)
	if !ok {
		return nil, domain.ErrNoMetrics
	}
	return latest, nil
}

func (s *MonitoringService) SubscribeMetrics(handler ports.MetricsHandler) func() {
	return s.bus.SubscribeMetrics(handler)
}

func (s *MonitoringService) SubscribeAlerts(handler ports.AlertsHandler) func() {
	return s.bus.SubscribeAlerts(handler)
}

func (s *MonitoringService) run(ctx context.Context, sessionID domain.SessionID, source ports.StatsSource, m *monitor) {
	defer s.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx, sessionID, source, m.generation); err != nil {
				s.logger.Warnw("monitoring tick failed",
					"session_id", sessionID,
					"error", err,
				)
			}
		}
	}
}

// tick is the failure boundary of one sampling round. Nothing it calls may
// stop the ticker.
func (s *MonitoringService) tick(ctx context.Context, sessionID domain.SessionID, source ports.StatsSource, generation uint64) (err error) {
	ctx, span := tracing.TraceTick(ctx, string(sessionID))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("monitoring tick panicked",
				"session_id", sessionID,
				"panic", r,
			)
			s.recorder.RecordTickFailure(sessionID, "panic")
			err = fmt.Errorf("tick panicked: %v", r)
			tracing.RecordError(ctx, err)
		}
	}()

	fetchCtx := ctx
	if s.cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.TickTimeout)
		defer cancel()
	}

	snapshot, err := s.sampler.Sample(fetchCtx, sessionID, source)
	if err != nil {
		if ctx.Err() != nil {
			// Stopped while fetching.
			return nil
		}
		s.recorder.RecordTickFailure(sessionID, "stats")
		tracing.RecordError(ctx, err)
		return err
	}

	alerts, ok := s.commit(sessionID, generation, snapshot)
	if !ok {
		s.logger.Debugw("discarding stale sample", "session_id", sessionID)
		return nil
	}

	tracing.AddSpanAttributes(ctx,
		tracing.ScoreKey.Int(snapshot.QualityScore),
		tracing.QualityKey.String(string(snapshot.QualityLevel)),
		tracing.LatencyKey.Float64(snapshot.Latency),
		tracing.PacketLossKey.Float64(snapshot.PacketLoss),
		tracing.AlertsKey.Int(len(alerts)),
	)

	s.storeRealtime(ctx, sessionID, generation, snapshot)

	// A stop or destroy may land while the snapshot is stored. Every
	// outbound step re-checks the monitor first.
	if !s.isCurrent(sessionID, generation) {
		return nil
	}
	s.recorder.ObserveSnapshot(snapshot)
	s.bus.PublishMetrics(domain.MetricsEvent{SessionID: sessionID, Snapshot: snapshot})

	if len(alerts) > 0 && s.appendAlerts(sessionID, generation, alerts) {
		s.recorder.RecordAlerts(sessionID, alerts)
		s.bus.PublishAlerts(domain.AlertsEvent{SessionID: sessionID, Alerts: alerts})
	}
	return nil
}

// commit derives, scores and records the snapshot in one critical section,
// and only when the monitor that produced it is still the active one for the
// session. ClearHistory takes the same lock, so deltas never come from a
// discarded snapshot.
func (s *MonitoringService) commit(sessionID domain.SessionID, generation uint64, snapshot *domain.MetricsSnapshot) ([]domain.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(sessionID, generation) {
		return nil, false
	}

	prev, _ := s.history.GetPrevious(sessionID)
	ApplyDeltas(snapshot, prev)
	s.scorer.Evaluate(snapshot)
	alerts := s.thresholds.Check(snapshot)

	s.history.Record(sessionID, snapshot)
	return alerts, true
}

func (s *MonitoringService) isCurrent(sessionID domain.SessionID, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(sessionID, generation)
}

func (s *MonitoringService) currentLocked(sessionID domain.SessionID, generation uint64) bool {
	m, exists := s.monitors[sessionID]
	return exists && m.generation == generation
}

func (s *MonitoringService) storeRealtime(ctx context.Context, sessionID domain.SessionID, generation uint64, snapshot *domain.MetricsSnapshot) {
	if s.realtime == nil || !s.isCurrent(sessionID, generation) {
		return
	}
	if err := s.realtime.StoreLatest(ctx, snapshot, s.cfg.RealtimeTTL); err != nil {
		s.logger.Warnw("failed to store realtime metrics",
			"session_id", sessionID,
			"error", err,
		)
		return
	}

	s.mu.Lock()
	destroyed := s.destroyed
	if !destroyed {
		s.stored[sessionID] = struct{}{}
	}
	s.mu.Unlock()

	// Destroy already swept the store; do not leave this entry behind.
	if destroyed {
		s.deleteRealtime(sessionID)
	}
}

// appendAlerts buffers the alerts unless the monitor was replaced or stopped
// in the meantime. It reports whether they were kept.
func (s *MonitoringService) appendAlerts(sessionID domain.SessionID, generation uint64, alerts []domain.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(sessionID, generation) {
		return false
	}

	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()

	buf := append(s.recentAlerts[sessionID], alerts...)
	if over := len(buf) - s.cfg.AlertBufferSize; over > 0 {
		buf = append([]domain.Alert(nil), buf[over:]...)
	}
	s.recentAlerts[sessionID] = buf
	return true
}

type noopRecorder struct{}

func (noopRecorder) ObserveSnapshot(*domain.MetricsSnapshot) {}
func (noopRecorder) RecordAlerts(domain.SessionID, []domain.Alert) {}
func (noopRecorder) RecordTickFailure(domain.SessionID, string) {}
func (noopRecorder) SessionStarted(domain.SessionID) {}
func (noopRecorder) SessionStopped(domain.SessionID) {}

var _ ports.MonitoringService = (*MonitoringService)(nil)
