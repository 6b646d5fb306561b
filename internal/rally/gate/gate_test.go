package gate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
)

// parabolaSamples builds a noise-free projectile window at the configured
// frame rate: x moves at vx, y follows 0.5*g*t^2 curvature.
func parabolaSamples(cfg config.Config, frames int) []rally.TrajectorySample {
	dt := cfg.DefaultTimeStep
	g := cfg.Gravity
	samples := make([]rally.TrajectorySample, 0, frames)
	for i := 0; i < frames; i++ {
		t := float64(i) * dt
		samples = append(samples, rally.TrajectorySample{
			Position: rally.Point{X: 0.2 + 0.5*t, Y: 0.8 - 1.5*t + 0.5*g*t*t},
			Velocity: rally.Point{X: 0.5, Y: -1.5 + g*t},
			Time:     t,
		})
	}
	return samples
}

// carriedSamples is constant velocity at constant height.
func carriedSamples(cfg config.Config, frames int) []rally.TrajectorySample {
	dt := cfg.DefaultTimeStep
	samples := make([]rally.TrajectorySample, 0, frames)
	for i := 0; i < frames; i++ {
		t := float64(i) * dt
		samples = append(samples, rally.TrajectorySample{
			Position: rally.Point{X: 0.1 + 0.3*t, Y: 0.5},
			Velocity: rally.Point{X: 0.3, Y: 0},
			Time:     t,
		})
	}
	return samples
}

func TestNoiseFreeParabolaScoresNearPerfect(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	res := v.Validate(parabolaSamples(cfg, 20))
	require.True(t, res.Valid, "reason: %s", res.Reason)
	assert.GreaterOrEqual(t, res.Score.RSquared, 0.99)
	assert.Equal(t, rally.FitExcellent, res.Tier)
	assert.InDelta(t, 0.5*cfg.Gravity, res.Curvature, 0.05)
	assert.InDelta(t, 1.0, res.Score.Smoothness, 0.05)
	assert.InDelta(t, 1.0, res.Score.AccelerationPattern, 0.05)
	assert.Equal(t, 1.0, res.Score.VelocityConsistency)
	assert.Less(t, res.ResidualRMS, 0.005)
}

func TestConstantHeightHasZeroRSquared(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	res := v.Validate(carriedSamples(cfg, 20))
	assert.False(t, res.Valid)
	assert.Zero(t, res.Score.RSquared)
	assert.Equal(t, rally.FitPoor, res.Tier)
	assert.Zero(t, res.Score.VerticalMotion)
}

func TestInsufficientSamples(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	res := v.Validate(parabolaSamples(cfg, cfg.MinPointsForFit-1))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "insufficient")
}

func TestWindowDropsOldSamples(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.FitWindowSeconds = 0.2
	v := NewValidator(cfg)

	// 60 frames at 30 fps spans 2s; only ~7 fall inside the 0.2s window
	res := v.Validate(parabolaSamples(cfg, 60))
	assert.LessOrEqual(t, res.Samples, 8)
	assert.GreaterOrEqual(t, res.Samples, cfg.MinPointsForFit)
}

func TestJumpRejection(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	samples := parabolaSamples(cfg, 20)
	samples[10].Position.X += 0.4 // teleport
	res := v.Validate(samples)
	assert.False(t, res.Valid)
}

func TestSlowMotionRejected(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	samples := parabolaSamples(cfg, 20)
	// kill the latest instantaneous velocity: a ball at rest is not active
	samples[len(samples)-1].Velocity = rally.Point{}
	res := v.Validate(samples)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "speed")
}

func TestGravityBandRejectsWrongCurvature(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	// inverted parabola: curvature negative, physically upward gravity
	dt := cfg.DefaultTimeStep
	samples := make([]rally.TrajectorySample, 0, 20)
	for i := 0; i < 20; i++ {
		tt := float64(i) * dt
		samples = append(samples, rally.TrajectorySample{
			Position: rally.Point{X: 0.2 + 0.5*tt, Y: 0.2 + 1.5*tt - 0.5*cfg.Gravity*tt*tt},
			Velocity: rally.Point{X: 0.5, Y: 1.5 - cfg.Gravity*tt},
			Time:     tt,
		})
	}
	res := v.Validate(samples)
	assert.False(t, res.Valid)
	assert.Less(t, res.Score.AccelerationPattern, 0.75)

	// with the band disabled the same window passes
	cfg.GravityBandWanted = false
	res = NewValidator(cfg).Validate(samples)
	assert.True(t, res.Valid, "reason: %s", res.Reason)
}

func TestNegativeRSquaredIsClampedForTiering(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	// sawtooth: vertical noise with no parabolic structure
	dt := cfg.DefaultTimeStep
	samples := make([]rally.TrajectorySample, 0, 20)
	for i := 0; i < 20; i++ {
		y := 0.4
		if i%2 == 0 {
			y = 0.45
		}
		samples = append(samples, rally.TrajectorySample{
			Position: rally.Point{X: 0.2 + 0.01*float64(i), Y: y},
			Velocity: rally.Point{X: 0.3, Y: 0},
			Time:     float64(i) * dt,
		})
	}
	res := v.Validate(samples)
	assert.False(t, res.Valid)
	assert.Equal(t, rally.FitPoor, res.Tier)
	assert.GreaterOrEqual(t, res.Score.ClampedRSquared(), 0.0)
}

func TestMeanAccelTracksGravityOnCleanFlight(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	res := v.Validate(parabolaSamples(cfg, 20))
	assert.InDelta(t, cfg.Gravity, res.MeanAccel, 0.5)
}

func TestVerticalMotionSaturates(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	v := NewValidator(cfg)

	res := v.Validate(parabolaSamples(cfg, 20))
	span := 20.0 * cfg.DefaultTimeStep
	drop := math.Abs(-1.5*span + 0.5*cfg.Gravity*span*span)
	if drop >= cfg.VerticalMotionRef {
		assert.Equal(t, 1.0, res.Score.VerticalMotion)
	} else {
		assert.Greater(t, res.Score.VerticalMotion, 0.0)
	}
}
