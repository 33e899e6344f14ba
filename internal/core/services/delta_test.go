package services

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBitrateKbps(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		prev *CounterSample
		curr CounterSample
		want float64
	}{
		{
			name: "no previous sample",
			prev: nil,
			curr: CounterSample{Bytes: 50000, At: base},
			want: 0,
		},
		{
			name: "previous counter is zero",
			prev: &CounterSample{Bytes: 0, At: base},
			curr: CounterSample{Bytes: 125000, At: base.Add(time.Second)},
			want: 0,
		},
		{
			name: "one second of 125000 bytes",
			prev: &CounterSample{Bytes: 1000, At: base},
			curr: CounterSample{Bytes: 126000, At: base.Add(time.Second)},
			want: 1000,
		},
		{
			name: "half a second",
			prev: &CounterSample{Bytes: 1000, At: base},
			curr: CounterSample{Bytes: 7250, At: base.Add(500 * time.Millisecond)},
			want: 100,
		},
		{
			name: "counter reset",
			prev: &CounterSample{Bytes: 90000, At: base},
			curr: CounterSample{Bytes: 100, At: base.Add(time.Second)},
			want: 0,
		},
		{
			name: "time did not advance",
			prev: &CounterSample{Bytes: 1000, At: base},
			curr: CounterSample{Bytes: 2000, At: base},
			want: 0,
		},
		{
			name: "time went backwards",
			prev: &CounterSample{Bytes: 1000, At: base},
			curr: CounterSample{Bytes: 2000, At: base.Add(-time.Second)},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, BitrateKbps(tt.prev, tt.curr), 1e-9)
		})
	}
}

func TestBitrateKbps_AlwaysFiniteAndNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Now()

	for i := 0; i < 10000; i++ {
		prev := &CounterSample{
			Bytes: rng.Uint64() >> uint(rng.Intn(64)),
			At:    base.Add(time.Duration(rng.Int63n(int64(10*time.Second))) - 5*time.Second),
		}
		curr := CounterSample{
			Bytes: rng.Uint64() >> uint(rng.Intn(64)),
			At:    base.Add(time.Duration(rng.Int63n(int64(10*time.Second))) - 5*time.Second),
		}

		got := BitrateKbps(prev, curr)
		if got < 0 || math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("BitrateKbps(%+v, %+v) = %v", prev, curr, got)
		}
	}
}

func TestSanitizeRate(t *testing.T) {
	assert.Equal(t, 0.0, sanitizeRate(math.NaN()))
	assert.Equal(t, 0.0, sanitizeRate(math.Inf(1)))
	assert.Equal(t, 0.0, sanitizeRate(math.Inf(-1)))
	assert.Equal(t, 0.0, sanitizeRate(-3))
	assert.Equal(t, 42.5, sanitizeRate(42.5))
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, clampPercent(-1))
	assert.Equal(t, 0.0, clampPercent(math.NaN()))
	assert.Equal(t, 100.0, clampPercent(250))
	assert.Equal(t, 2.5, clampPercent(2.5))
}
