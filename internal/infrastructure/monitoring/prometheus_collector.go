package monitoring

import (
	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	sessionsActive  prometheus.Gauge
	snapshotsTotal  prometheus.Counter
	alertsTotal     *prometheus.CounterVec
	tickFailures    *prometheus.CounterVec
	qualityLevelObs *prometheus.CounterVec

	// Histograms
	latency    prometheus.Histogram
	packetLoss prometheus.Histogram

	// Per-session gauges
	sessionScore      *prometheus.GaugeVec
	sessionLatency    *prometheus.GaugeVec
	sessionJitter     *prometheus.GaugeVec
	sessionPacketLoss *prometheus.GaugeVec
	sessionBandwidth  *prometheus.GaugeVec
	sessionBitrate    *prometheus.GaugeVec
}

// NewPrometheusCollector registers the QoS metrics with reg. A nil reg uses
// the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qosmon_sessions_active",
			Help: "Number of sessions currently being monitored",
		}),

		snapshotsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "qosmon_snapshots_total",
			Help: "Total number of recorded metrics snapshots",
		}),

		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qosmon_alerts_total",
			Help: "Total number of threshold alerts raised",
		}, []string{"metric", "type"}),

		tickFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qosmon_tick_failures_total",
			Help: "Total number of monitoring ticks that failed",
		}, []string{"reason"}),

		qualityLevelObs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qosmon_quality_level_observations_total",
			Help: "Snapshots observed at each quality level",
		}, []string{"level"}),

		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "qosmon_latency_seconds",
			Help:    "Round-trip time reported by monitored sessions",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1},
		}),

		packetLoss: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "qosmon_packet_loss_percent",
			Help:    "Inbound video packet loss reported by monitored sessions",
			Buckets: []float64{0.1, 0.5, 1, 3, 5, 10, 25},
		}),

		sessionScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qosmon_session_quality_score",
			Help: "Latest quality score of a session (0-100)",
		}, []string{"session_id"}),

		sessionLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qosmon_session_latency_ms",
			Help: "Latest round-trip time of a session in milliseconds",
		}, []string{"session_id"}),

		sessionJitter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qosmon_session_jitter_ms",
			Help: "Latest jitter of a session in milliseconds",
		}, []string{"session_id"}),

		sessionPacketLoss: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qosmon_session_packet_loss_percent",
			Help: "Latest packet loss of a session in percent",
		}, []string{"session_id"}),

		sessionBandwidth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qosmon_session_bandwidth_kbps",
			Help: "Latest available bandwidth estimate of a session",
		}, []string{"session_id", "direction"}),

		sessionBitrate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qosmon_session_bitrate_kbps",
			Help: "Latest received bitrate of a session",
		}, []string{"session_id", "media"}),
	}
}

func (p *PrometheusCollector) SessionStarted(sessionID domain.SessionID) {
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) SessionStopped(sessionID domain.SessionID) {
	p.sessionsActive.Dec()

	id := string(sessionID)
	p.sessionScore.DeleteLabelValues(id)
	p.sessionLatency.DeleteLabelValues(id)
	p.sessionJitter.DeleteLabelValues(id)
	p.sessionPacketLoss.DeleteLabelValues(id)
	p.sessionBandwidth.DeleteLabelValues(id, "upload")
	p.sessionBandwidth.DeleteLabelValues(id, "download")
	p.sessionBitrate.DeleteLabelValues(id, "video")
	p.sessionBitrate.DeleteLabelValues(id, "audio")
}

func (p *PrometheusCollector) ObserveSnapshot(snapshot *domain.MetricsSnapshot) {
	id := string(snapshot.SessionID)

	p.snapshotsTotal.Inc()
	p.qualityLevelObs.WithLabelValues(string(snapshot.QualityLevel)).Inc()
	p.latency.Observe(snapshot.Latency / 1000)
	p.packetLoss.Observe(snapshot.PacketLoss)

	p.sessionScore.WithLabelValues(id).Set(float64(snapshot.QualityScore))
	p.sessionLatency.WithLabelValues(id).Set(snapshot.Latency)
	p.sessionJitter.WithLabelValues(id).Set(snapshot.Jitter)
	p.sessionPacketLoss.WithLabelValues(id).Set(snapshot.PacketLoss)
	p.sessionBandwidth.WithLabelValues(id, "upload").Set(snapshot.Bandwidth.Upload)
	p.sessionBandwidth.WithLabelValues(id, "download").Set(snapshot.Bandwidth.Download)
	p.sessionBitrate.WithLabelValues(id, "video").Set(snapshot.Video.Bitrate)
	p.sessionBitrate.WithLabelValues(id, "audio").Set(snapshot.Audio.Bitrate)
}

func (p *PrometheusCollector) RecordAlerts(sessionID domain.SessionID, alerts []domain.Alert) {
	for _, a := range alerts {
		p.alertsTotal.WithLabelValues(a.Metric, string(a.Type)).Inc()
	}
}

func (p *PrometheusCollector) RecordTickFailure(sessionID domain.SessionID, reason string) {
	p.tickFailures.WithLabelValues(reason).Inc()
}

var _ ports.QoSMetricsRecorder = (*PrometheusCollector)(nil)
