package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
)

func TestCompositeIsWeightedSum(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	s := New(cfg)

	p := rally.PhysicsScore{
		VelocityConsistency: 1.0,
		AccelerationPattern: 0.5,
		Smoothness:          0.8,
		VerticalMotion:      0.25,
	}
	q := s.Score(p)

	want := cfg.WeightVelocityConsistency*1.0 +
		cfg.WeightAccelerationPattern*0.5 +
		cfg.WeightSmoothness*0.8 +
		cfg.WeightVerticalMotion*0.25
	assert.InDelta(t, want, q.Composite, 1e-12)

	// the reported sub-scores are the weighted contributions and
	// reconstruct the composite exactly
	sum := q.VelocityConsistency + q.AccelerationPattern + q.Smoothness + q.VerticalMotion
	assert.InDelta(t, q.Composite, sum, 1e-12)
}

func TestCompositeStaysInUnitInterval(t *testing.T) {
	t.Parallel()
	s := New(config.DefaultConfig())

	perfect := s.Score(rally.PhysicsScore{
		VelocityConsistency: 1, AccelerationPattern: 1, Smoothness: 1, VerticalMotion: 1,
	})
	assert.InDelta(t, 1.0, perfect.Composite, 0.011)

	zero := s.Score(rally.PhysicsScore{})
	assert.Zero(t, zero.Composite)
}

func TestTiers(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	s := New(cfg)

	cases := []struct {
		name string
		p    rally.PhysicsScore
		tier rally.QualityTier
		pass bool
	}{
		{
			name: "all perfect is excellent",
			p:    rally.PhysicsScore{VelocityConsistency: 1, AccelerationPattern: 1, Smoothness: 1, VerticalMotion: 1},
			tier: rally.QualityExcellent,
			pass: true,
		},
		{
			name: "uniform 0.7 is good",
			p:    rally.PhysicsScore{VelocityConsistency: 0.7, AccelerationPattern: 0.7, Smoothness: 0.7, VerticalMotion: 0.7},
			tier: rally.QualityGood,
			pass: true,
		},
		{
			name: "uniform 0.5 is acceptable",
			p:    rally.PhysicsScore{VelocityConsistency: 0.5, AccelerationPattern: 0.5, Smoothness: 0.5, VerticalMotion: 0.5},
			tier: rally.QualityAcceptable,
			pass: true,
		},
		{
			name: "uniform 0.2 fails gating",
			p:    rally.PhysicsScore{VelocityConsistency: 0.2, AccelerationPattern: 0.2, Smoothness: 0.2, VerticalMotion: 0.2},
			tier: rally.QualityFailed,
			pass: false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := s.Score(tc.p)
			assert.Equal(t, tc.tier, q.Tier)
			assert.Equal(t, tc.pass, s.Passes(q))
		})
	}
}
