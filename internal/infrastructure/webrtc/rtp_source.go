package webrtc

import (
	"context"
	"sync"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ntpEpochOffset is the number of seconds between 1900 and 1970.
const ntpEpochOffset = 2208988800

// RTPStatsSource derives connection statistics from the RTP and RTCP traffic
// it is shown. It serves receivers that terminate media themselves, where the
// peer connection stats lack inbound counters.
type RTPStatsSource struct {
	mu       sync.Mutex
	streams  map[uint32]*rtpStream
	rtt      float64 // seconds
	remb     float64 // bits per second
	received uint64
	rateAt   time.Time
	download float64 // bits per second

	now    func() time.Time
	logger *zap.SugaredLogger
}

type rtpStream struct {
	kind      webrtc.RTPCodecType
	codec     string
	clockRate uint32

	started    bool
	baseSeq    uint16
	maxSeq     uint16
	cycles     uint32
	packets    uint64
	bytes      uint64
	transit    float64
	jitter     float64 // RTP timestamp units
	lastPacket time.Time
}

func NewRTPStatsSource(logger *zap.SugaredLogger) *RTPStatsSource {
	return &RTPStatsSource{
		streams: make(map[uint32]*rtpStream),
		now:     time.Now,
		logger:  logger,
	}
}

// RegisterStream declares an SSRC before its first packet. Packets of unknown
// SSRCs are ignored.
func (s *RTPStatsSource) RegisterStream(ssrc uint32, kind webrtc.RTPCodecType, mimeType string, clockRate uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[ssrc] = &rtpStream{kind: kind, codec: mimeType, clockRate: clockRate}
}

// ObserveRTP accounts one received packet. arrival is the local receive time.
func (s *RTPStatsSource) ObserveRTP(pkt *rtp.Packet, arrival time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[pkt.SSRC]
	if !ok {
		return
	}

	st.packets++
	st.bytes += uint64(len(pkt.Payload))
	s.received += uint64(len(pkt.Payload))

	if !st.started {
		st.started = true
		st.baseSeq = pkt.SequenceNumber
		st.maxSeq = pkt.SequenceNumber
	} else if delta := pkt.SequenceNumber - st.maxSeq; delta > 0 && delta < 1<<15 {
		if pkt.SequenceNumber < st.maxSeq {
			st.cycles += 1 << 16
		}
		st.maxSeq = pkt.SequenceNumber
	}

	// RFC 3550 A.8 interarrival jitter.
	if st.clockRate > 0 {
		arrivalUnits := float64(arrival.UnixNano()) / float64(time.Second) * float64(st.clockRate)
		transit := arrivalUnits - float64(pkt.Timestamp)
		if !st.lastPacket.IsZero() {
			d := transit - st.transit
			if d < 0 {
				d = -d
			}
			st.jitter += (d - st.jitter) / 16
		}
		st.transit = transit
	}
	st.lastPacket = arrival
}

// ObserveRTCP extracts round-trip time from receiver reports and the upload
// estimate from REMB.
func (s *RTPStatsSource) ObserveRTCP(packets []rtcp.Packet, arrival time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			s.observeReports(p.Reports, arrival)
		case *rtcp.SenderReport:
			s.observeReports(p.Reports, arrival)
		case *rtcp.ReceiverEstimatedMaximumBitrate:
			s.remb = float64(p.Bitrate)
		}
	}
}

func (s *RTPStatsSource) observeReports(reports []rtcp.ReceptionReport, arrival time.Time) {
	for _, report := range reports {
		if report.LastSenderReport == 0 {
			continue
		}
		// All terms are in 1/65536 s.
		rtt := ntpMiddle32(arrival) - report.LastSenderReport - report.Delay
		if rtt >= 1<<31 {
			continue
		}
		s.rtt = float64(rtt) / 65536
	}
}

// ObserveTrack pumps RTP from track and RTCP from receiver until either read
// fails, which happens when the connection closes.
func (s *RTPStatsSource) ObserveTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	codec := track.Codec()
	s.RegisterStream(uint32(track.SSRC()), track.Kind(), codec.MimeType, codec.ClockRate)

	s.logger.Infow("observing remote track",
		"track_id", track.ID(),
		"kind", track.Kind().String(),
		"codec", codec.MimeType,
	)

	go func() {
		for {
			packets, _, err := receiver.ReadRTCP()
			if err != nil {
				s.logger.Debugw("stopped reading RTCP", "track_id", track.ID(), "error", err)
				return
			}
			s.ObserveRTCP(packets, s.now())
		}
	}()

	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				s.logger.Debugw("stopped reading RTP", "track_id", track.ID(), "error", err)
				return
			}
			s.ObserveRTP(pkt, s.now())
		}
	}()
}

func (s *RTPStatsSource) GetStats(ctx context.Context) ([]domain.StatsReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.rateAt.IsZero() {
		if elapsed := now.Sub(s.rateAt).Seconds(); elapsed > 0 {
			s.download = float64(s.received*8) / elapsed
		}
	}
	s.received = 0
	s.rateAt = now

	reports := []domain.StatsReport{
		domain.CandidatePairStats{
			Succeeded:                true,
			CurrentRoundTripTime:     s.rtt,
			AvailableOutgoingBitrate: s.remb,
			AvailableIncomingBitrate: s.download,
		},
	}

	for _, st := range s.streams {
		if !st.started {
			continue
		}
		expected := uint64(st.cycles) + uint64(st.maxSeq) - uint64(st.baseSeq) + 1
		lost := int64(expected) - int64(st.packets)
		if lost < 0 {
			lost = 0
		}
		var jitter float64
		if st.clockRate > 0 {
			jitter = st.jitter / float64(st.clockRate)
		}

		switch st.kind {
		case webrtc.RTPCodecTypeVideo:
			reports = append(reports, domain.InboundVideoStats{
				Timestamp:       now,
				BytesReceived:   st.bytes,
				PacketsReceived: st.packets,
				PacketsLost:     lost,
				Jitter:          jitter,
				Codec:           st.codec,
			})
		case webrtc.RTPCodecTypeAudio:
			reports = append(reports, domain.InboundAudioStats{
				Timestamp:       now,
				BytesReceived:   st.bytes,
				PacketsReceived: st.packets,
				PacketsLost:     lost,
				Jitter:          jitter,
				Codec:           st.codec,
			})
		}
	}
	return reports, nil
}

// ntpMiddle32 returns the middle 32 bits of the NTP timestamp for t, the
// format of LSR and DLSR.
func ntpMiddle32(t time.Time) uint32 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return uint32((secs<<32 | frac) >> 16)
}

var _ ports.StatsSource = (*RTPStatsSource)(nil)
