package domain

import "time"

type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

// Metric names carried by alerts.
const (
	MetricLatency    = "latency"
	MetricJitter     = "jitter"
	MetricPacketLoss = "packetLoss"
	MetricBandwidth  = "bandwidth"
)

type Alert struct {
	ID        string    `json:"id"`
	SessionID SessionID `json:"sessionId"`
	Type      AlertType `json:"type"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type EventType string

const (
	EventMetrics EventType = "metrics"
	EventAlerts  EventType = "alerts"
)

// MetricsEvent is published after every successful tick.
type MetricsEvent struct {
	SessionID SessionID        `json:"sessionId"`
	Snapshot  *MetricsSnapshot `json:"metrics"`
}

// AlertsEvent is published only for ticks that produced at least one alert.
type AlertsEvent struct {
	SessionID SessionID `json:"sessionId"`
	Alerts    []Alert   `json:"alerts"`
}
