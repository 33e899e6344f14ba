package domain

import "time"

// StatsReport is one record of a connection statistics snapshot. The set of
// variants is closed: CandidatePairStats, InboundVideoStats,
// InboundAudioStats, OutboundVideoStats, OutboundAudioStats and
// TransportStats.
type StatsReport interface {
	statsReport()
}

type CandidatePairStats struct {
	Succeeded bool
	// CurrentRoundTripTime in seconds.
	CurrentRoundTripTime float64
	// Available bitrate estimates in bits per second, zero when unknown.
	AvailableOutgoingBitrate float64
	AvailableIncomingBitrate float64
}

type InboundVideoStats struct {
	Timestamp       time.Time
	BytesReceived   uint64
	PacketsReceived uint64
	PacketsLost     int64
	Jitter          float64 // seconds
	FramesPerSecond float64
	FrameWidth      uint32
	FrameHeight     uint32
	Codec           string
}

type InboundAudioStats struct {
	Timestamp       time.Time
	BytesReceived   uint64
	PacketsReceived uint64
	PacketsLost     int64
	Jitter          float64 // seconds
	AudioLevel      float64
	Codec           string
}

type OutboundVideoStats struct {
	BytesSent uint64
	Codec     string
}

type OutboundAudioStats struct {
	BytesSent      uint64
	Codec          string
	EchoReturnLoss float64
}

type TransportStats struct {
	// Available bitrate estimates in bits per second, zero when unknown.
	AvailableOutgoingBitrate float64
	AvailableIncomingBitrate float64
}

func (CandidatePairStats) statsReport() {}
func (InboundVideoStats) statsReport() {}
func (InboundAudioStats) statsReport() {}
func (OutboundVideoStats) statsReport() {}
func (OutboundAudioStats) statsReport() {}
func (TransportStats) statsReport() {}
