package domain

import "fmt"

// TierThresholds bounds one quality tier. Latency, Jitter and PacketLoss are
// ceilings; MinBandwidth is a floor in kbps.
type TierThresholds struct {
	Latency      float64 `json:"latency" yaml:"latency"`
	Jitter       float64 `json:"jitter" yaml:"jitter"`
	PacketLoss   float64 `json:"packetLoss" yaml:"packet_loss"`
	MinBandwidth float64 `json:"minBandwidth" yaml:"min_bandwidth"`
}

// QualityThresholds is immutable for the lifetime of a monitor. Anything
// worse than Fair is poor.
type QualityThresholds struct {
	Excellent TierThresholds `json:"excellent" yaml:"excellent"`
	Good      TierThresholds `json:"good" yaml:"good"`
	Fair      TierThresholds `json:"fair" yaml:"fair"`
}

func DefaultThresholds() QualityThresholds {
	return QualityThresholds{
		Excellent: TierThresholds{
			Latency:      50,
			Jitter:       10,
			PacketLoss:   0.5,
			MinBandwidth: 1000,
		},
		Good: TierThresholds{
			Latency:      100,
			Jitter:       20,
			PacketLoss:   1,
			MinBandwidth: 500,
		},
		Fair: TierThresholds{
			Latency:      200,
			Jitter:       50,
			PacketLoss:   3,
			MinBandwidth: 250,
		},
	}
}

// Validate checks that tiers are non-negative and ordered.
func (t QualityThresholds) Validate() error {
	tiers := []struct {
		name string
		tier TierThresholds
	}{
		{"excellent", t.Excellent},
		{"good", t.Good},
		{"fair", t.Fair},
	}
	for _, tt := range tiers {
		if tt.tier.Latency < 0 || tt.tier.Jitter < 0 || tt.tier.PacketLoss < 0 || tt.tier.MinBandwidth < 0 {
			return fmt.Errorf("%w: %s tier has negative values", ErrInvalidThresholds, tt.name)
		}
	}
	if t.Excellent.Latency > t.Good.Latency || t.Good.Latency > t.Fair.Latency {
		return fmt.Errorf("%w: latency ceilings must not decrease from excellent to fair", ErrInvalidThresholds)
	}
	if t.Excellent.Jitter > t.Good.Jitter || t.Good.Jitter > t.Fair.Jitter {
		return fmt.Errorf("%w: jitter ceilings must not decrease from excellent to fair", ErrInvalidThresholds)
	}
	if t.Excellent.PacketLoss > t.Good.PacketLoss || t.Good.PacketLoss > t.Fair.PacketLoss {
		return fmt.Errorf("%w: packet loss ceilings must not decrease from excellent to fair", ErrInvalidThresholds)
	}
	if t.Excellent.MinBandwidth < t.Good.MinBandwidth || t.Good.MinBandwidth < t.Fair.MinBandwidth {
		return fmt.Errorf("%w: bandwidth floors must not increase from excellent to fair", ErrInvalidThresholds)
	}
	return nil
}
