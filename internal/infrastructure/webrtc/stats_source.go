package webrtc

import (
	"context"
	"fmt"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"

	"github.com/pion/webrtc/v3"
)

// statsGetter is the part of *webrtc.PeerConnection the source needs.
type statsGetter interface {
	GetStats() webrtc.StatsReport
	ConnectionState() webrtc.PeerConnectionState
}

// PeerConnectionStatsSource samples a pion peer connection and converts its
// W3C stats into domain reports.
type PeerConnectionStatsSource struct {
	pc statsGetter
}

func NewPeerConnectionStatsSource(pc *webrtc.PeerConnection) *PeerConnectionStatsSource {
	return &PeerConnectionStatsSource{pc: pc}
}

func (s *PeerConnectionStatsSource) GetStats(ctx context.Context) ([]domain.StatsReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if state := s.pc.ConnectionState(); state == webrtc.PeerConnectionStateClosed {
		return nil, fmt.Errorf("peer connection is %s", state)
	}
	return ConvertStatsReport(s.pc.GetStats()), nil
}

// ConvertStatsReport maps the pion report types the sampler understands and
// drops the rest. Codec references are resolved to MIME types, and per-kind
// receiver and sender stats are merged into the inbound and outbound records.
func ConvertStatsReport(report webrtc.StatsReport) []domain.StatsReport {
	codecs := make(map[string]string)
	var (
		videoReceiver *webrtc.VideoReceiverStats
		audioReceiver *webrtc.AudioReceiverStats
		audioSender   *webrtc.AudioSenderStats
	)
	for _, stat := range report {
		switch st := stat.(type) {
		case webrtc.CodecStats:
			codecs[st.ID] = st.MimeType
		case webrtc.VideoReceiverStats:
			v := st
			videoReceiver = &v
		case webrtc.AudioReceiverStats:
			a := st
			audioReceiver = &a
		case webrtc.AudioSenderStats:
			a := st
			audioSender = &a
		}
	}

	out := make([]domain.StatsReport, 0, len(report))
	for _, stat := range report {
		switch st := stat.(type) {
		case webrtc.ICECandidatePairStats:
			out = append(out, domain.CandidatePairStats{
				Succeeded:                st.State == webrtc.StatsICECandidatePairStateSucceeded,
				CurrentRoundTripTime:     st.CurrentRoundTripTime,
				AvailableOutgoingBitrate: st.AvailableOutgoingBitrate,
				AvailableIncomingBitrate: st.AvailableIncomingBitrate,
			})

		case webrtc.InboundRTPStreamStats:
			switch st.Kind {
			case "video":
				in := domain.InboundVideoStats{
					Timestamp:       statsTime(st.Timestamp),
					BytesReceived:   st.BytesReceived,
					PacketsReceived: uint64(st.PacketsReceived),
					PacketsLost:     int64(st.PacketsLost),
					Jitter:          st.Jitter,
					Codec:           codecs[st.CodecID],
				}
				if videoReceiver != nil {
					in.FramesPerSecond = videoReceiver.FramesPerSecond
					in.FrameWidth = videoReceiver.FrameWidth
					in.FrameHeight = videoReceiver.FrameHeight
				}
				out = append(out, in)
			case "audio":
				in := domain.InboundAudioStats{
					Timestamp:       statsTime(st.Timestamp),
					BytesReceived:   st.BytesReceived,
					PacketsReceived: uint64(st.PacketsReceived),
					PacketsLost:     int64(st.PacketsLost),
					Jitter:          st.Jitter,
					Codec:           codecs[st.CodecID],
				}
				if audioReceiver != nil {
					in.AudioLevel = audioReceiver.AudioLevel
				}
				out = append(out, in)
			}

		case webrtc.OutboundRTPStreamStats:
			switch st.Kind {
			case "video":
				out = append(out, domain.OutboundVideoStats{
					BytesSent: st.BytesSent,
					Codec:     codecs[st.CodecID],
				})
			case "audio":
				o := domain.OutboundAudioStats{
					BytesSent: st.BytesSent,
					Codec:     codecs[st.CodecID],
				}
				if audioSender != nil {
					o.EchoReturnLoss = audioSender.EchoReturnLoss
				}
				out = append(out, o)
			}
		}
	}
	return out
}

// statsTime converts a W3C stats timestamp (ms since epoch) to time.Time.
func statsTime(ts webrtc.StatsTimestamp) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(float64(ts)*float64(time.Millisecond)))
}

var _ ports.StatsSource = (*PeerConnectionStatsSource)(nil)
