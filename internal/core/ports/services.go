package ports

import (
	"context"

	"qosmon/internal/core/domain"
)

// StatsSource is the live connection handle the monitor samples from.
type StatsSource interface {
	GetStats(ctx context.Context) ([]domain.StatsReport, error)
}

// StatsSourceFunc adapts a function to StatsSource.
type StatsSourceFunc func(ctx context.Context) ([]domain.StatsReport, error)

func (f StatsSourceFunc) GetStats(ctx context.Context) ([]domain.StatsReport, error) {
	return f(ctx)
}

type MetricsHandler func(domain.MetricsEvent)

type AlertsHandler func(domain.AlertsEvent)

// EventSubscriber is the fan-out side exposed to the presentation layer.
// Handlers must treat published snapshots and alerts as read-only.
type EventSubscriber interface {
	SubscribeMetrics(handler MetricsHandler) (unsubscribe func())
	SubscribeAlerts(handler AlertsHandler) (unsubscribe func())
}

type MonitoringService interface {
	EventSubscriber

	StartMonitoring(sessionID domain.SessionID, source StatsSource, intervalMs int) error
	StopMonitoring(sessionID domain.SessionID)
	Destroy()

	Thresholds() domain.QualityThresholds
	IsMonitoring(sessionID domain.SessionID) bool
	ActiveSessions() []domain.SessionID
	ClearHistory(sessionID domain.SessionID)

	GetMetricsHistory(sessionID domain.SessionID) []*domain.MetricsSnapshot
	GetAverageMetrics(sessionID domain.SessionID) (*domain.AverageMetrics, bool)
	GenerateQualityReport(sessionID domain.SessionID) (*domain.QualityReport, bool)
	RecentAlerts(sessionID domain.SessionID) []domain.Alert
	GetRealtimeMetrics(ctx context.Context, sessionID domain.SessionID) (*domain.MetricsSnapshot, error)
}

// QoSMetricsRecorder receives per-tick observations for export.
type QoSMetricsRecorder interface {
	ObserveSnapshot(snapshot *domain.MetricsSnapshot)
	RecordAlerts(sessionID domain.SessionID, alerts []domain.Alert)
	RecordTickFailure(sessionID domain.SessionID, reason string)
	SessionStarted(sessionID domain.SessionID)
	SessionStopped(sessionID domain.SessionID)
}
