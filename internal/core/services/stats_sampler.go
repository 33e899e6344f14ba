package services

import (
	"context"
	"fmt"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
)

// StatsSampler pulls one statistics snapshot from a connection and folds the
// heterogeneous reports into a MetricsSnapshot. Derived rates are left at
// zero; see ApplyDeltas.
type StatsSampler struct {
	now func() time.Time
}

func NewStatsSampler() *StatsSampler {
	return &StatsSampler{now: time.Now}
}

func (s *StatsSampler) Sample(ctx context.Context, sessionID domain.SessionID, source ports.StatsSource) (*domain.MetricsSnapshot, error) {
	reports, err := source.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStatsUnavailable, err)
	}

	var acc statsAccumulator
	for _, r := range reports {
		acc.add(r)
	}
	return acc.snapshot(sessionID, s.now()), nil
}

// statsAccumulator is the fold state. Counters of the same kind are summed and
// gauges keep the largest reported value, so the result does not depend on
// report order.
type statsAccumulator struct {
	rtt         float64
	upload      float64
	download    float64
	lastStatsAt time.Time

	videoBytes     uint64
	videoPackets   uint64
	videoLost      int64
	videoJitter    float64
	videoFPS       float64
	videoWidth     uint32
	videoHeight    uint32
	videoCodec     string
	inVideoCodec   string
	audioBytes     uint64
	audioLevel     float64
	audioCodec     string
	inAudioCodec   string
	echoReturnLoss float64
}

func (a *statsAccumulator) add(report domain.StatsReport) {
	switch r := report.(type) {
	case domain.CandidatePairStats:
		if !r.Succeeded {
			return
		}
		a.rtt = maxFloat(a.rtt, r.CurrentRoundTripTime)
		a.upload = maxFloat(a.upload, r.AvailableOutgoingBitrate)
		a.download = maxFloat(a.download, r.AvailableIncomingBitrate)

	case domain.InboundVideoStats:
		a.videoBytes += r.BytesReceived
		a.videoPackets += r.PacketsReceived
		if r.PacketsLost > 0 {
			a.videoLost += r.PacketsLost
		}
		a.videoJitter = maxFloat(a.videoJitter, r.Jitter)
		a.videoFPS = maxFloat(a.videoFPS, r.FramesPerSecond)
		if uint64(r.FrameWidth)*uint64(r.FrameHeight) > uint64(a.videoWidth)*uint64(a.videoHeight) {
			a.videoWidth, a.videoHeight = r.FrameWidth, r.FrameHeight
		}
		if a.inVideoCodec == "" {
			a.inVideoCodec = r.Codec
		}
		a.observe(r.Timestamp)

	case domain.InboundAudioStats:
		a.audioBytes += r.BytesReceived
		a.audioLevel = maxFloat(a.audioLevel, r.AudioLevel)
		if a.inAudioCodec == "" {
			a.inAudioCodec = r.Codec
		}
		a.observe(r.Timestamp)

	case domain.OutboundVideoStats:
		if a.videoCodec == "" {
			a.videoCodec = r.Codec
		}

	case domain.OutboundAudioStats:
		if a.audioCodec == "" {
			a.audioCodec = r.Codec
		}
		a.echoReturnLoss = maxFloat(a.echoReturnLoss, r.EchoReturnLoss)

	case domain.TransportStats:
		a.upload = maxFloat(a.upload, r.AvailableOutgoingBitrate)
		a.download = maxFloat(a.download, r.AvailableIncomingBitrate)
	}
}

func (a *statsAccumulator) observe(ts time.Time) {
	if ts.After(a.lastStatsAt) {
		a.lastStatsAt = ts
	}
}

func (a *statsAccumulator) snapshot(sessionID domain.SessionID, capturedAt time.Time) *domain.MetricsSnapshot {
	ts := capturedAt
	if !a.lastStatsAt.IsZero() {
		ts = a.lastStatsAt
	}

	// Loss is taken from inbound video only.
	var loss float64
	if a.videoPackets > 0 {
		loss = float64(a.videoLost) / float64(uint64(a.videoLost)+a.videoPackets) * 100
	}

	return &domain.MetricsSnapshot{
		SessionID:  sessionID,
		Timestamp:  ts,
		Latency:    sanitizeRate(a.rtt * 1000),
		Jitter:     sanitizeRate(a.videoJitter * 1000),
		PacketLoss: clampPercent(loss),
		Bandwidth: domain.Bandwidth{
			Upload:   sanitizeRate(a.upload / 1000),
			Download: sanitizeRate(a.download / 1000),
		},
		Video: domain.VideoMetrics{
			FrameRate:     sanitizeRate(a.videoFPS),
			Resolution:    domain.Resolution{Width: a.videoWidth, Height: a.videoHeight},
			Codec:         firstNonEmpty(a.videoCodec, a.inVideoCodec),
			BytesReceived: a.videoBytes,
		},
		Audio: domain.AudioMetrics{
			Codec:          firstNonEmpty(a.audioCodec, a.inAudioCodec),
			Level:          a.audioLevel,
			EchoReturnLoss: a.echoReturnLoss,
			BytesReceived:  a.audioBytes,
		},
	}
}

// ApplyDeltas derives video and audio bitrates against the previous recorded
// snapshot of the same session. Without a previous snapshot both stay 0.
func ApplyDeltas(curr, prev *domain.MetricsSnapshot) {
	curr.Video.Bitrate = 0
	curr.Audio.Bitrate = 0
	if prev == nil {
		return
	}
	curr.Video.Bitrate = BitrateKbps(
		&CounterSample{Bytes: prev.Video.BytesReceived, At: prev.Timestamp},
		CounterSample{Bytes: curr.Video.BytesReceived, At: curr.Timestamp},
	)
	curr.Audio.Bitrate = BitrateKbps(
		&CounterSample{Bytes: prev.Audio.BytesReceived, At: prev.Timestamp},
		CounterSample{Bytes: curr.Audio.BytesReceived, At: curr.Timestamp},
	)
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
