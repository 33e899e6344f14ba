package services

import (
	"math/rand"
	"testing"

	"qosmon/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func healthySample() domain.NetworkSample {
	return domain.NetworkSample{
		Latency:    40,
		Jitter:     8,
		PacketLoss: 0.2,
		Bandwidth:  domain.Bandwidth{Upload: 1200, Download: 1200},
	}
}

func TestQualityService_CalculateScore(t *testing.T) {
	qs := NewQualityService(domain.DefaultThresholds())

	tests := []struct {
		name   string
		mutate func(*domain.NetworkSample)
		want   int
		level  domain.QualityLevel
	}{
		{
			name:   "all metrics excellent",
			mutate: func(*domain.NetworkSample) {},
			want:   100,
			level:  domain.QualityExcellent,
		},
		{
			name:   "latency beyond fair",
			mutate: func(s *domain.NetworkSample) { s.Latency = 250 },
			want:   70,
			level:  domain.QualityGood,
		},
		{
			name:   "latency at good ceiling",
			mutate: func(s *domain.NetworkSample) { s.Latency = 100 },
			want:   90,
			level:  domain.QualityExcellent,
		},
		{
			name:   "jitter within fair",
			mutate: func(s *domain.NetworkSample) { s.Jitter = 30 },
			want:   86,
			level:  domain.QualityGood,
		},
		{
			name:   "loss beyond fair",
			mutate: func(s *domain.NetworkSample) { s.PacketLoss = 5 },
			want:   70,
			level:  domain.QualityGood,
		},
		{
			name: "bandwidth limited by upload",
			mutate: func(s *domain.NetworkSample) {
				s.Bandwidth = domain.Bandwidth{Upload: 300, Download: 5000}
			},
			want:  86,
			level: domain.QualityGood,
		},
		{
			name: "everything poor",
			mutate: func(s *domain.NetworkSample) {
				*s = domain.NetworkSample{Latency: 500, Jitter: 100, PacketLoss: 10}
			},
			want:  0,
			level: domain.QualityPoor,
		},
		{
			name: "all metrics fair",
			mutate: func(s *domain.NetworkSample) {
				*s = domain.NetworkSample{
					Latency:    150,
					Jitter:     40,
					PacketLoss: 2,
					Bandwidth:  domain.Bandwidth{Upload: 300, Download: 300},
				}
			},
			want:  32,
			level: domain.QualityPoor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample := healthySample()
			tt.mutate(&sample)

			score := qs.CalculateScore(sample)
			assert.Equal(t, tt.want, score)
			assert.Equal(t, tt.level, qs.DetermineLevel(score))
		})
	}
}

func TestQualityService_ScoreBounds(t *testing.T) {
	qs := NewQualityService(domain.DefaultThresholds())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		sample := domain.NetworkSample{
			Latency:    rng.Float64() * 2000,
			Jitter:     rng.Float64() * 500,
			PacketLoss: rng.Float64() * 100,
			Bandwidth: domain.Bandwidth{
				Upload:   rng.Float64() * 5000,
				Download: rng.Float64() * 5000,
			},
		}
		score := qs.CalculateScore(sample)
		if score < 0 || score > 100 {
			t.Fatalf("score %d out of bounds for %+v", score, sample)
		}
	}
}

func TestQualityLevelForScore_Monotonic(t *testing.T) {
	rank := map[domain.QualityLevel]int{
		domain.QualityPoor:      0,
		domain.QualityFair:      1,
		domain.QualityGood:      2,
		domain.QualityExcellent: 3,
	}

	prev := rank[QualityLevelForScore(0)]
	for score := 1; score <= 100; score++ {
		curr := rank[QualityLevelForScore(score)]
		assert.GreaterOrEqual(t, curr, prev, "score %d", score)
		prev = curr
	}

	assert.Equal(t, domain.QualityExcellent, QualityLevelForScore(90))
	assert.Equal(t, domain.QualityGood, QualityLevelForScore(89))
	assert.Equal(t, domain.QualityGood, QualityLevelForScore(70))
	assert.Equal(t, domain.QualityFair, QualityLevelForScore(69))
	assert.Equal(t, domain.QualityFair, QualityLevelForScore(50))
	assert.Equal(t, domain.QualityPoor, QualityLevelForScore(49))
}

func TestQualityService_Evaluate(t *testing.T) {
	qs := NewQualityService(domain.DefaultThresholds())
	snapshot := &domain.MetricsSnapshot{
		Latency:    250,
		Jitter:     8,
		PacketLoss: 0.2,
		Bandwidth:  domain.Bandwidth{Upload: 1200, Download: 1200},
	}

	qs.Evaluate(snapshot)

	assert.Equal(t, 70, snapshot.QualityScore)
	assert.Equal(t, domain.QualityGood, snapshot.QualityLevel)
}
