package services

import (
	"qosmon/internal/core/domain"
)

// Deduction ceilings per metric. Latency and packet loss weigh the most.
const (
	maxLatencyDeduction    = 30
	maxJitterDeduction     = 20
	maxPacketLossDeduction = 30
	maxBandwidthDeduction  = 20
)

type QualityService struct {
	thresholds domain.QualityThresholds
}

func NewQualityService(thresholds domain.QualityThresholds) *QualityService {
	return &QualityService{thresholds: thresholds}
}

// GetThresholds returns the thresholds scoring is based on.
func (qs *QualityService) GetThresholds() domain.QualityThresholds {
	return qs.thresholds
}

// CalculateScore starts at 100 and subtracts an independent tiered penalty
// for each metric. The result is always within [0, 100].
func (qs *QualityService) CalculateScore(m domain.NetworkSample) int {
	t := qs.thresholds
	score := 100

	score -= ceilingDeduction(m.Latency, t.Excellent.Latency, t.Good.Latency, t.Fair.Latency,
		[4]int{0, 10, 20, maxLatencyDeduction})
	score -= ceilingDeduction(m.Jitter, t.Excellent.Jitter, t.Good.Jitter, t.Fair.Jitter,
		[4]int{0, 7, 14, maxJitterDeduction})
	score -= ceilingDeduction(m.PacketLoss, t.Excellent.PacketLoss, t.Good.PacketLoss, t.Fair.PacketLoss,
		[4]int{0, 10, 20, maxPacketLossDeduction})
	score -= floorDeduction(m.Bandwidth.Min(), t.Excellent.MinBandwidth, t.Good.MinBandwidth, t.Fair.MinBandwidth,
		[4]int{0, 7, 14, maxBandwidthDeduction})

	if score < 0 {
		return 0
	}
	return score
}

// DetermineLevel classifies a score. It is monotonic in score.
func (qs *QualityService) DetermineLevel(score int) domain.QualityLevel {
	return QualityLevelForScore(score)
}

func QualityLevelForScore(score int) domain.QualityLevel {
	switch {
	case score >= 90:
		return domain.QualityExcellent
	case score >= 70:
		return domain.QualityGood
	case score >= 50:
		return domain.QualityFair
	default:
		return domain.QualityPoor
	}
}

// Evaluate fills in the derived score and level of a snapshot.
func (qs *QualityService) Evaluate(snapshot *domain.MetricsSnapshot) {
	snapshot.QualityScore = qs.CalculateScore(snapshot.Network())
	snapshot.QualityLevel = qs.DetermineLevel(snapshot.QualityScore)
}

func ceilingDeduction(v, excellent, good, fair float64, steps [4]int) int {
	switch {
	case v <= excellent:
		return steps[0]
	case v <= good:
		return steps[1]
	case v <= fair:
		return steps[2]
	default:
		return steps[3]
	}
}

func floorDeduction(v, excellent, good, fair float64, steps [4]int) int {
	switch {
	case v >= excellent:
		return steps[0]
	case v >= good:
		return steps[1]
	case v >= fair:
		return steps[2]
	default:
		return steps[3]
	}
}
