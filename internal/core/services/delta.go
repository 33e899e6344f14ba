package services

import (
	"math"
	"time"
)

// CounterSample is a cumulative byte counter observed at a point in time.
type CounterSample struct {
	Bytes uint64
	At    time.Time
}

// BitrateKbps converts two cumulative byte counters into kilobits per second.
// The result is 0 when there is no usable previous sample, when time did not
// advance, or when the counter went backwards (renegotiation resets it).
func BitrateKbps(prev *CounterSample, curr CounterSample) float64 {
	if prev == nil || prev.Bytes == 0 {
		return 0
	}
	elapsed := curr.At.Sub(prev.At).Seconds()
	if elapsed <= 0 {
		return 0
	}
	if curr.Bytes < prev.Bytes {
		return 0
	}
	byteDelta := float64(curr.Bytes - prev.Bytes)
	return sanitizeRate(byteDelta * 8 / elapsed / 1000)
}

// sanitizeRate clamps anything that is not a finite non-negative number to 0.
func sanitizeRate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// clampPercent keeps a percentage within [0, 100].
func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
