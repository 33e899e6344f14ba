package services

import (
	"fmt"
	"time"

	"qosmon/internal/core/domain"

	"github.com/google/uuid"
)

// ThresholdService raises per-metric alerts independently of the composite
// score: a warning above the good tier and a critical alert above the fair
// tier.
type ThresholdService struct {
	thresholds domain.QualityThresholds
	now        func() time.Time
}

func NewThresholdService(thresholds domain.QualityThresholds) *ThresholdService {
	return &ThresholdService{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Check returns the alerts for one snapshot, or nil when every metric is
// within the good tier.
func (ts *ThresholdService) Check(snapshot *domain.MetricsSnapshot) []domain.Alert {
	t := ts.thresholds
	var alerts []domain.Alert

	switch {
	case snapshot.Latency > t.Fair.Latency:
		alerts = append(alerts, ts.alert(snapshot, domain.AlertCritical, domain.MetricLatency, snapshot.Latency, t.Fair.Latency,
			fmt.Sprintf("High latency detected: %.0fms", snapshot.Latency)))
	case snapshot.Latency > t.Good.Latency:
		alerts = append(alerts, ts.alert(snapshot, domain.AlertWarning, domain.MetricLatency, snapshot.Latency, t.Good.Latency,
			fmt.Sprintf("Moderate latency: %.0fms", snapshot.Latency)))
	}

	switch {
	case snapshot.Jitter > t.Fair.Jitter:
		alerts = append(alerts, ts.alert(snapshot, domain.AlertCritical, domain.MetricJitter, snapshot.Jitter, t.Fair.Jitter,
			fmt.Sprintf("High jitter detected: %.0fms", snapshot.Jitter)))
	case snapshot.Jitter > t.Good.Jitter:
		alerts = append(alerts, ts.alert(snapshot, domain.AlertWarning, domain.MetricJitter, snapshot.Jitter, t.Good.Jitter,
			fmt.Sprintf("Moderate jitter: %.0fms", snapshot.Jitter)))
	}

	switch {
	case snapshot.PacketLoss > t.Fair.PacketLoss:
		alerts = append(alerts, ts.alert(snapshot, domain.AlertCritical, domain.MetricPacketLoss, snapshot.PacketLoss, t.Fair.PacketLoss,
			fmt.Sprintf("High packet loss: %.2f%%", snapshot.PacketLoss)))
	case snapshot.PacketLoss > t.Good.PacketLoss:
		alerts = append(alerts, ts.alert(snapshot, domain.AlertWarning, domain.MetricPacketLoss, snapshot.PacketLoss, t.Good.PacketLoss,
			fmt.Sprintf("Moderate packet loss: %.2f%%", snapshot.PacketLoss)))
	}

	// No estimate at all means the transport did not report one.
	if snapshot.Bandwidth.Upload > 0 || snapshot.Bandwidth.Download > 0 {
		bw := snapshot.Bandwidth.Min()
		switch {
		case bw < t.Fair.MinBandwidth:
			alerts = append(alerts, ts.alert(snapshot, domain.AlertCritical, domain.MetricBandwidth, bw, t.Fair.MinBandwidth,
				fmt.Sprintf("Insufficient bandwidth: %.0fkbps", bw)))
		case bw < t.Good.MinBandwidth:
			alerts = append(alerts, ts.alert(snapshot, domain.AlertWarning, domain.MetricBandwidth, bw, t.Good.MinBandwidth,
				fmt.Sprintf("Limited bandwidth: %.0fkbps", bw)))
		}
	}

	return alerts
}

func (ts *ThresholdService) alert(snapshot *domain.MetricsSnapshot, typ domain.AlertType, metric string, value, threshold float64, msg string) domain.Alert {
	return domain.Alert{
		ID:        uuid.NewString(),
		SessionID: snapshot.SessionID,
		Type:      typ,
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		Message:   msg,
		Timestamp: ts.now(),
	}
}
