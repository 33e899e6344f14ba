package domain

import "time"

type SessionID string

type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityFair      QualityLevel = "fair"
	QualityPoor      QualityLevel = "poor"
)

// QualityLevels lists the levels from best to worst.
var QualityLevels = []QualityLevel{QualityExcellent, QualityGood, QualityFair, QualityPoor}

type Bandwidth struct {
	Upload   float64 `json:"upload"`   // kbps
	Download float64 `json:"download"` // kbps
}

// Min returns the limiting direction.
func (b Bandwidth) Min() float64 {
	if b.Upload < b.Download {
		return b.Upload
	}
	return b.Download
}

type Resolution struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

type VideoMetrics struct {
	FrameRate  float64    `json:"frameRate"`
	Resolution Resolution `json:"resolution"`
	Bitrate    float64    `json:"bitrate"` // kbps
	Codec      string     `json:"codec"`

	// BytesReceived is the cumulative counter the next bitrate delta is computed from.
	BytesReceived uint64 `json:"bytesReceived,omitempty"`
}

type AudioMetrics struct {
	Bitrate        float64 `json:"bitrate"` // kbps
	Codec          string  `json:"codec"`
	Level          float64 `json:"level"`          // 0-1
	EchoReturnLoss float64 `json:"echoReturnLoss"` // dB

	BytesReceived uint64 `json:"bytesReceived,omitempty"`
}

// MetricsSnapshot is one sampling tick of one session. It must not be
// mutated once recorded.
type MetricsSnapshot struct {
	SessionID SessionID `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`

	Latency    float64   `json:"latency"`    // ms
	Jitter     float64   `json:"jitter"`     // ms
	PacketLoss float64   `json:"packetLoss"` // percent, 0-100
	Bandwidth  Bandwidth `json:"bandwidth"`

	Video VideoMetrics `json:"video"`
	Audio AudioMetrics `json:"audio"`

	QualityScore int          `json:"qualityScore"`
	QualityLevel QualityLevel `json:"qualityLevel"`
}

// NetworkSample is the subset of a snapshot that drives scoring.
type NetworkSample struct {
	Latency    float64
	Jitter     float64
	PacketLoss float64
	Bandwidth  Bandwidth
}

func (s *MetricsSnapshot) Network() NetworkSample {
	return NetworkSample{
		Latency:    s.Latency,
		Jitter:     s.Jitter,
		PacketLoss: s.PacketLoss,
		Bandwidth:  s.Bandwidth,
	}
}

// AverageMetrics holds arithmetic means over the retained history window.
type AverageMetrics struct {
	Latency      float64   `json:"latency"`
	Jitter       float64   `json:"jitter"`
	PacketLoss   float64   `json:"packetLoss"`
	Bandwidth    Bandwidth `json:"bandwidth"`
	QualityScore float64   `json:"qualityScore"`
	SampleCount  int       `json:"sampleCount"`
}

type QualityPercentages struct {
	Excellent float64 `json:"excellent"`
	Good      float64 `json:"good"`
	Fair      float64 `json:"fair"`
	Poor      float64 `json:"poor"`
}

func (p QualityPercentages) Total() float64 {
	return p.Excellent + p.Good + p.Fair + p.Poor
}

type QualityReport struct {
	SessionID          SessionID          `json:"sessionId"`
	GeneratedAt        time.Time          `json:"generatedAt"`
	SampleCount        int                `json:"sampleCount"`
	Duration           string             `json:"duration"` // span of the retained window
	Summary            AverageMetrics     `json:"summary"`
	QualityPercentages QualityPercentages `json:"qualityPercentages"`
	// Stability is the share of samples rated good or better, in percent.
	Stability       float64  `json:"stability"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}
