package track

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
)

// feedParabola drives e with a noise-free projectile path starting at t=0
// and returns the time of the last frame.
func feedParabola(e *Estimator, cfg config.Config, frames int) float64 {
	dt := cfg.DefaultTimeStep
	var t float64
	for i := 0; i < frames; i++ {
		t = float64(i) * dt
		x := 0.2 + 0.5*t
		y := 0.8 - 1.5*t + 0.5*cfg.Gravity*t*t
		e.Update(rally.Point{X: x, Y: y}, 0.9, t)
	}
	return t
}

func TestSeedOnFirstMeasurement(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	e := New(cfg)

	require.False(t, e.Initialized())
	ok := e.Update(rally.Point{X: 0.4, Y: 0.6}, 0.8, 1.0)
	require.True(t, ok)
	require.True(t, e.Initialized())

	assert.Equal(t, rally.Point{X: 0.4, Y: 0.6}, e.Position())
	assert.Equal(t, rally.Point{}, e.Velocity())
	assert.Equal(t, 1, e.HistoryLen())
	assert.Equal(t, 1, e.Age())
}

func TestPredictOnlyNeverShrinksCovariance(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	e := New(cfg)
	e.Update(rally.Point{X: 0.5, Y: 0.5}, 0.9, 0)

	prev := e.Covariance()
	for i := 0; i < 50; i++ {
		e.Predict(cfg.DefaultTimeStep)
		cur := e.Covariance()
		for d := 0; d < 4; d++ {
			assert.GreaterOrEqual(t, cur[d*4+d], prev[d*4+d],
				"diagonal %d shrank on predict-only step %d", d, i)
		}
		prev = cur
	}
}

func TestGateRejectionLeavesPredictOnlyState(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()

	// Two estimators fed the identical settled track; one then sees a
	// half-frame jump, the other an explicit missed detection.
	a := New(cfg)
	b := New(cfg)
	last := feedParabola(a, cfg, 12)
	feedParabola(b, cfg, 12)

	now := last + cfg.DefaultTimeStep
	wild := rally.Point{X: a.Position().X + 0.5, Y: a.Position().Y + 0.5}
	accepted := a.Update(wild, 0.9, now)
	b.PredictWithoutDetection(cfg.DefaultTimeStep)

	require.False(t, accepted, "half-frame jump must be rejected by the gate")
	assert.Empty(t, cmp.Diff(b.Position(), a.Position()))
	assert.Empty(t, cmp.Diff(b.Velocity(), a.Velocity()))
	assert.Empty(t, cmp.Diff(b.Covariance(), a.Covariance()))
	assert.Equal(t, b.Confidence(), a.Confidence())
	assert.Equal(t, b.HistoryLen(), a.HistoryLen())
}

func TestConsistentMeasurementsAccepted(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	e := New(cfg)

	dt := cfg.DefaultTimeStep
	for i := 0; i < 20; i++ {
		tm := float64(i) * dt
		ok := e.Update(rally.Point{X: 0.2 + 0.3*tm, Y: 0.5}, 0.9, tm)
		assert.True(t, ok, "frame %d", i)
	}
	// velocity converges toward the true 0.3 units/s
	assert.InDelta(t, 0.3, e.Velocity().X, 0.1)
}

func TestTrackingConfidenceDecayAndBoost(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	e := New(cfg)
	last := feedParabola(e, cfg, 15)

	boosted := e.Confidence()
	assert.Greater(t, boosted, 0.5)
	assert.LessOrEqual(t, boosted, 1.0)

	for i := 0; i < 10; i++ {
		e.PredictWithoutDetection(cfg.DefaultTimeStep)
	}
	decayed := e.Confidence()
	assert.Less(t, decayed, boosted)

	e.Update(e.Position(), 0.9, last+11*cfg.DefaultTimeStep)
	assert.Greater(t, e.Confidence(), decayed)
}

func TestHistoryRingBounded(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.MaxTrajectoryHistory = 10
	e := New(cfg)
	feedParabola(e, cfg, 50)

	require.Equal(t, 10, e.HistoryLen())
	h := e.History(0)
	for i := 1; i < len(h); i++ {
		assert.Greater(t, h[i].Time, h[i-1].Time, "history out of order at %d", i)
	}

	// History(n) returns the n newest samples
	tail := e.History(3)
	require.Len(t, tail, 3)
	assert.Equal(t, h[len(h)-1], tail[2])
}

func TestPredictedTrajectoryIntegratesGravity(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	e := New(cfg)
	feedParabola(e, cfg, 12)

	ahead := e.PredictedTrajectory(5)
	require.Len(t, ahead, 5)
	for i := 1; i < len(ahead); i++ {
		assert.Greater(t, ahead[i].Velocity.Y, ahead[i-1].Velocity.Y,
			"vertical velocity must grow downward under gravity")
		assert.Greater(t, ahead[i].Time, ahead[i-1].Time)
	}
	// look-ahead must not disturb the filter
	before := e.Position()
	e.PredictedTrajectory(50)
	assert.Equal(t, before, e.Position())
}

func TestSignificantTrajectoryChange(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.VelocityChangeThreshold = 0.3
	e := New(cfg)

	dt := cfg.DefaultTimeStep
	var tm float64
	for i := 0; i < 15; i++ {
		tm = float64(i) * dt
		e.Update(rally.Point{X: 0.1 + 0.4*tm, Y: 0.5}, 0.9, tm)
	}
	assert.False(t, e.SignificantTrajectoryChange())

	// a hit: horizontal speed jumps from 0.4 to 2.0 units/s
	x0 := 0.1 + 0.4*tm
	changed := false
	for i := 1; i <= 6; i++ {
		now := tm + float64(i)*dt
		e.Update(rally.Point{X: x0 + 2.0*(now-tm), Y: 0.5}, 0.9, now)
		changed = changed || e.SignificantTrajectoryChange()
	}
	assert.True(t, changed)
}

func TestNaNMeasurementTriggersNumericalReset(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	e := New(cfg)
	resets := 0
	e.OnNumericalReset = func() { resets++ }

	last := feedParabola(e, cfg, 10)
	ok := e.Update(rally.Point{X: math.NaN(), Y: 0.5}, 0.9, last+cfg.DefaultTimeStep)

	assert.False(t, ok)
	assert.Equal(t, 1, resets)
	assert.False(t, e.Initialized())

	// recoverable: the next clean detection re-seeds
	ok = e.Update(rally.Point{X: 0.5, Y: 0.5}, 0.9, last+2*cfg.DefaultTimeStep)
	assert.True(t, ok)
	assert.True(t, e.Initialized())
}

func TestResetClearsEverything(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	e := New(cfg)
	feedParabola(e, cfg, 10)

	e.Reset()
	assert.False(t, e.Initialized())
	assert.Equal(t, 0, e.HistoryLen())
	assert.Equal(t, 0, e.Age())
	assert.Zero(t, e.Confidence())
	assert.Equal(t, [16]float64{}, e.Covariance())
}

func TestVelocityClampBoundsSpeed(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.MaxSpeed = 0.5
	cfg.GateSigma = 1e6 // let everything through to stress the clamp
	e := New(cfg)

	dt := cfg.DefaultTimeStep
	for i := 0; i < 20; i++ {
		tm := float64(i) * dt
		x := math.Mod(0.1+2.0*tm, 1.0)
		e.Update(rally.Point{X: x, Y: 0.5}, 0.9, tm)
		speed := math.Hypot(e.Velocity().X, e.Velocity().Y)
		assert.LessOrEqual(t, speed, cfg.MaxSpeed+1e-9)
	}
}
