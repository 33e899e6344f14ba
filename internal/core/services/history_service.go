package services

import (
	"qosmon/internal/core/domain"
)

// ComputeAverages returns the arithmetic means over the given window. Once
// the history buffer has evicted entries this is the average of the retained
// samples only, not of the whole session.
func ComputeAverages(history []*domain.MetricsSnapshot) (*domain.AverageMetrics, bool) {
	if len(history) == 0 {
		return nil, false
	}

	var sum domain.AverageMetrics
	for _, m := range history {
		sum.Latency += m.Latency
		sum.Jitter += m.Jitter
		sum.PacketLoss += m.PacketLoss
		sum.Bandwidth.Upload += m.Bandwidth.Upload
		sum.Bandwidth.Download += m.Bandwidth.Download
		sum.QualityScore += float64(m.QualityScore)
	}

	n := float64(len(history))
	return &domain.AverageMetrics{
		Latency:    sum.Latency / n,
		Jitter:     sum.Jitter / n,
		PacketLoss: sum.PacketLoss / n,
		Bandwidth: domain.Bandwidth{
			Upload:   sum.Bandwidth.Upload / n,
			Download: sum.Bandwidth.Download / n,
		},
		QualityScore: sum.QualityScore / n,
		SampleCount:  len(history),
	}, true
}
