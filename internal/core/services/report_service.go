package services

import (
	"fmt"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/pkg/utils"
)

// poorShareLimit is the share of poor samples, in percent, above which the
// session is flagged.
const poorShareLimit = 10.0

const (
	recommendRouting    = "Consider using a closer server or optimizing network routing"
	recommendStability  = "Check network stability and consider wired connection"
	recommendConnection = "Upgrade internet connection for better video quality"
)

type ReportService struct {
	thresholds domain.QualityThresholds
	now        func() time.Time
}

func NewReportService(thresholds domain.QualityThresholds) *ReportService {
	return &ReportService{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Generate builds a report from the retained history of one session. It
// returns false when the history is empty.
func (rs *ReportService) Generate(sessionID domain.SessionID, history []*domain.MetricsSnapshot) (*domain.QualityReport, bool) {
	summary, ok := ComputeAverages(history)
	if !ok {
		return nil, false
	}

	percentages := LevelPercentages(history)
	issues, recommendations := rs.diagnose(summary, percentages)

	return &domain.QualityReport{
		SessionID:          sessionID,
		GeneratedAt:        rs.now(),
		SampleCount:        len(history),
		Duration:           utils.FormatDuration(windowSpan(history)),
		Summary:            *summary,
		QualityPercentages: percentages,
		Stability:          percentages.Excellent + percentages.Good,
		Issues:             issues,
		Recommendations:    recommendations,
	}, true
}

func (rs *ReportService) diagnose(avg *domain.AverageMetrics, pct domain.QualityPercentages) ([]string, []string) {
	good := rs.thresholds.Good
	issues := []string{}
	recommendations := []string{}

	if avg.Latency > good.Latency {
		issues = append(issues, fmt.Sprintf("Average latency (%.0fms) exceeded recommended threshold", avg.Latency))
		recommendations = append(recommendations, recommendRouting)
	}
	if avg.PacketLoss > good.PacketLoss {
		issues = append(issues, fmt.Sprintf("Packet loss (%.2f%%) impacted call quality", avg.PacketLoss))
		recommendations = append(recommendations, recommendStability)
	}
	if pct.Poor > poorShareLimit {
		issues = append(issues, fmt.Sprintf("Poor quality detected for %.1f%% of the session", pct.Poor))
		if len(recommendations) == 0 {
			// Poor samples without a dominant latency or loss cause still
			// warrant a network-level hint.
			recommendations = append(recommendations, recommendStability)
		}
	}
	if avg.Bandwidth.Upload < good.MinBandwidth {
		recommendations = append(recommendations, recommendConnection)
	}

	return issues, recommendations
}

// LevelPercentages returns the share of samples at each quality level. The
// four values sum to 100 for a non-empty history.
func LevelPercentages(history []*domain.MetricsSnapshot) domain.QualityPercentages {
	var counts [4]int
	for _, m := range history {
		switch m.QualityLevel {
		case domain.QualityExcellent:
			counts[0]++
		case domain.QualityGood:
			counts[1]++
		case domain.QualityFair:
			counts[2]++
		case domain.QualityPoor:
			counts[3]++
		default:
			// Unscored entries are classified from their score.
			counts[levelIndex(QualityLevelForScore(m.QualityScore))]++
		}
	}

	if len(history) == 0 {
		return domain.QualityPercentages{}
	}
	total := float64(len(history))
	return domain.QualityPercentages{
		Excellent: float64(counts[0]) / total * 100,
		Good:      float64(counts[1]) / total * 100,
		Fair:      float64(counts[2]) / total * 100,
		Poor:      float64(counts[3]) / total * 100,
	}
}

func levelIndex(level domain.QualityLevel) int {
	for i, l := range domain.QualityLevels {
		if l == level {
			return i
		}
	}
	return len(domain.QualityLevels) - 1
}

func windowSpan(history []*domain.MetricsSnapshot) time.Duration {
	if len(history) < 2 {
		return 0
	}
	span := history[len(history)-1].Timestamp.Sub(history[0].Timestamp)
	if span < 0 {
		return 0
	}
	return span
}
