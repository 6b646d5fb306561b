package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/gate"
)

func TestCleanParabolaIsAirborne(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	c := New(cfg)

	res := gate.NewValidator(cfg).Validate(parabolaSamples(cfg, 20))
	require.True(t, res.Valid, "reason: %s", res.Reason)

	cls := c.Classify(res)
	assert.Equal(t, rally.MovementAirborne, cls.Class)
	assert.Greater(t, cls.Confidence, cfg.MinClassificationConfidence)
}

func TestCarriedNeverAirborne(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	c := New(cfg)

	t.Run("perfectly smooth constant height", func(t *testing.T) {
		t.Parallel()
		res := gate.NewValidator(cfg).Validate(carriedSamples(cfg, 20, 0))
		cls := c.Classify(res)
		assert.NotEqual(t, rally.MovementAirborne, cls.Class)
		assert.Contains(t, []rally.MovementClass{rally.MovementCarried, rally.MovementUnknown}, cls.Class)
	})

	t.Run("jittery hand-carried motion", func(t *testing.T) {
		t.Parallel()
		res := gate.NewValidator(cfg).Validate(carriedSamples(cfg, 20, 0.02))
		cls := c.Classify(res)
		assert.NotEqual(t, rally.MovementAirborne, cls.Class)
	})
}

func TestRollingMatchesDeceleratingFlatMotion(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	c := New(cfg)

	// flat path with mild steady deceleration, the floor-roll signature
	dt := cfg.DefaultTimeStep
	samples := make([]rally.TrajectorySample, 0, 20)
	for i := 0; i < 20; i++ {
		tt := float64(i) * dt
		v := 0.6 - 0.5*tt
		samples = append(samples, rally.TrajectorySample{
			Position: rally.Point{X: 0.1 + 0.6*tt - 0.25*tt*tt, Y: 0.9},
			Velocity: rally.Point{X: v, Y: 0},
			Time:     tt,
		})
	}
	res := gate.NewValidator(cfg).Validate(samples)
	cls := c.Classify(res)
	assert.Equal(t, rally.MovementRolling, cls.Class)
}

func TestSubMinimumConfidenceDemotesToUnknown(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.MinClassificationConfidence = 0.99
	c := New(cfg)

	// rolling would match, but its confidence cannot reach 0.99
	res := gate.Result{
		MeanAccel: 0.4,
		Score: rally.PhysicsScore{
			Smoothness:          0.9,
			VelocityConsistency: 1,
			VerticalMotion:      0,
		},
	}
	cls := c.Classify(res)
	assert.Equal(t, rally.MovementUnknown, cls.Class)
}

func TestUnknownForAmbiguousWindow(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	c := New(cfg)

	// moderately rough, moderately fast: matches no rule
	res := gate.Result{
		MeanAccel: 2.0,
		Score: rally.PhysicsScore{
			RSquared:            0.3,
			VelocityConsistency: 0.9,
			AccelerationPattern: 0.4,
			Smoothness:          0.55,
			VerticalMotion:      0.5,
		},
	}
	cls := c.Classify(res)
	assert.Equal(t, rally.MovementUnknown, cls.Class)
	assert.Zero(t, cls.Confidence)
}

// parabolaSamples mirrors the gate package's synthetic projectile input.
func parabolaSamples(cfg config.Config, frames int) []rally.TrajectorySample {
	dt := cfg.DefaultTimeStep
	g := cfg.Gravity
	samples := make([]rally.TrajectorySample, 0, frames)
	for i := 0; i < frames; i++ {
		tt := float64(i) * dt
		samples = append(samples, rally.TrajectorySample{
			Position: rally.Point{X: 0.2 + 0.5*tt, Y: 0.8 - 1.5*tt + 0.5*g*tt*tt},
			Velocity: rally.Point{X: 0.5, Y: -1.5 + g*tt},
			Time:     tt,
		})
	}
	return samples
}

// carriedSamples is constant velocity at constant height with optional
// deterministic vertical jitter.
func carriedSamples(cfg config.Config, frames int, jitter float64) []rally.TrajectorySample {
	dt := cfg.DefaultTimeStep
	samples := make([]rally.TrajectorySample, 0, frames)
	for i := 0; i < frames; i++ {
		tt := float64(i) * dt
		y := 0.5
		if i%2 == 1 {
			y += jitter
		}
		samples = append(samples, rally.TrajectorySample{
			Position: rally.Point{X: 0.1 + 0.3*tt, Y: y},
			Velocity: rally.Point{X: 0.3, Y: 0},
			Time:     tt,
		})
	}
	return samples
}
