// Package track implements the recursive state estimator for the tracked
// ball: a four-state Kalman filter over [x, y, vx, vy] with a projectile
// motion model, Mahalanobis innovation gating, and a bounded trajectory
// history ring consumed by the physics gate downstream.
package track

import (
	"math"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
)

const (
	// minDeterminant is the floor for the 2x2 innovation covariance
	// determinant. Below it the inversion falls back to identity instead
	// of propagating NaN/Inf through the gain.
	minDeterminant = 1e-12

	// maxPredictDt clamps prediction steps across frame gaps so F*P*F^T
	// cannot balloon the gating ellipse after a long dropout.
	maxPredictDt = 0.25

	// maxCovarianceDiag caps diagonal growth under repeated predict-only
	// evolution.
	maxCovarianceDiag = 100.0
)

// initial covariance: loose on position, looser on velocity, which is
// unobserved until the second measurement.
var initialCovariance = [16]float64{
	0.01, 0, 0, 0,
	0, 0.01, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0, 0.5,
}

// Estimator owns the single TrackState of a processing run. It is not safe
// for concurrent use; the pipeline drives it strictly in timestamp order.
type Estimator struct {
	cfg config.Config

	// OnNumericalReset, when non-nil, is invoked each time a NaN/Inf
	// guard discards the filter state. Recoverable diagnostic only; the
	// frame is then handled as a missed detection.
	OnNumericalReset func()

	initialized bool
	x, y        float64 // position, unit square
	vx, vy      float64 // velocity, units/s
	p           [16]float64
	age         int // frames since initialization
	lastTime    float64
	confidence  float64

	history []rally.TrajectorySample // ring, capacity cfg.MaxTrajectoryHistory
}

// New returns an estimator in the uninitialized state. The first accepted
// measurement seeds position; velocity starts at rest and is pulled in by
// subsequent updates.
func New(cfg config.Config) *Estimator {
	return &Estimator{
		cfg:     cfg,
		history: make([]rally.TrajectorySample, 0, cfg.MaxTrajectoryHistory),
	}
}

// Reset discards all filter state, the history ring, and the tracking
// confidence in one step. The next Update re-seeds the filter.
func (e *Estimator) Reset() {
	e.initialized = false
	e.x, e.y, e.vx, e.vy = 0, 0, 0, 0
	e.p = [16]float64{}
	e.age = 0
	e.lastTime = 0
	e.confidence = 0
	e.history = e.history[:0]
}

// Initialized reports whether the filter has been seeded by a measurement.
func (e *Estimator) Initialized() bool { return e.initialized }

// Position returns the current position estimate.
func (e *Estimator) Position() rally.Point { return rally.Point{X: e.x, Y: e.y} }

// Velocity returns the current velocity estimate in units/s.
func (e *Estimator) Velocity() rally.Point { return rally.Point{X: e.vx, Y: e.vy} }

// Covariance returns the 4x4 covariance matrix, row-major.
func (e *Estimator) Covariance() [16]float64 { return e.p }

// Age returns the number of frames processed since initialization.
func (e *Estimator) Age() int { return e.age }

// Confidence returns the tracking confidence in [0, 1]. It decays every
// frame without an accepted measurement and is boosted on each accepted one.
func (e *Estimator) Confidence() float64 { return e.confidence }

// Predict advances the state under the projectile model and grows the
// covariance by the time-scaled process noise. dt <= 0 falls back to the
// configured default time step.
func (e *Estimator) Predict(dt float64) {
	if !e.initialized {
		return
	}
	if dt <= 0 {
		dt = e.cfg.DefaultTimeStep
	}
	if dt > maxPredictDt {
		dt = maxPredictDt
	}

	// Projectile model: constant horizontal velocity, gravity on the
	// vertical component (+y is down in image coordinates).
	//   x' = x + vx*dt
	//   y' = y + vy*dt + 0.5*g*dt^2
	//   vy' = vy + g*dt
	e.x += e.vx * dt
	e.y += e.vy*dt + 0.5*e.cfg.Gravity*dt*dt
	e.vy += e.cfg.Gravity * dt

	// Covariance predict P' = F*P*F^T + Q*dt. Gravity enters as a known
	// control input, so F is the constant-velocity transition:
	//   F = [1 0 dt 0; 0 1 0 dt; 0 0 1 0; 0 0 0 1]
	P := e.p
	var fp [16]float64
	for j := 0; j < 4; j++ {
		fp[0*4+j] = P[0*4+j] + dt*P[2*4+j]
		fp[1*4+j] = P[1*4+j] + dt*P[3*4+j]
		fp[2*4+j] = P[2*4+j]
		fp[3*4+j] = P[3*4+j]
	}
	for i := 0; i < 4; i++ {
		e.p[i*4+0] = fp[i*4+0] + dt*fp[i*4+2]
		e.p[i*4+1] = fp[i*4+1] + dt*fp[i*4+3]
		e.p[i*4+2] = fp[i*4+2]
		e.p[i*4+3] = fp[i*4+3]
	}
	e.p[0*4+0] += e.cfg.ProcessNoisePosition * dt
	e.p[1*4+1] += e.cfg.ProcessNoisePosition * dt
	e.p[2*4+2] += e.cfg.ProcessNoiseVelocity * dt
	e.p[3*4+3] += e.cfg.ProcessNoiseVelocity * dt

	for i := 0; i < 4; i++ {
		if e.p[i*4+i] > maxCovarianceDiag {
			e.p[i*4+i] = maxCovarianceDiag
		}
	}

	if !e.isFinite() {
		e.numericalReset()
		return
	}
	e.clamp()
}

// PredictWithoutDetection handles a frame with no usable detection:
// predict-only evolution, the pure prediction appended to history, and
// confidence decayed.
func (e *Estimator) PredictWithoutDetection(dt float64) {
	if !e.initialized {
		return
	}
	e.Predict(dt)
	if !e.initialized { // numerical reset inside Predict
		return
	}
	e.lastTime += dt
	e.age++
	e.confidence *= e.cfg.ConfidenceDecayRate
	e.appendSample()
}

// Update assimilates a measurement taken at time now (seconds). It predicts
// forward by the elapsed time internally, then gates the innovation in
// standard-deviation units: a measurement outside the gate is rejected
// outright and the frame is left exactly as the predict-only evolution wrote
// it. Returns whether the measurement was accepted.
func (e *Estimator) Update(z rally.Point, confidence, now float64) bool {
	if !e.initialized {
		e.seed(z, now)
		return true
	}

	dt := now - e.lastTime
	e.Predict(dt)
	if !e.initialized {
		return false
	}
	e.lastTime = now
	e.age++

	// Confidence-scaled measurement noise: a shaky detection widens R.
	r := e.cfg.MeasurementNoise / math.Max(confidence, e.cfg.MinMeasurementConfidence)

	// Innovation
	yX := z.X - e.x
	yY := z.Y - e.y

	// Innovation covariance S = H*P*H^T + R and its closed-form inverse.
	s00 := e.p[0*4+0] + r
	s01 := e.p[0*4+1]
	s10 := e.p[1*4+0]
	s11 := e.p[1*4+1] + r

	det := s00*s11 - s01*s10
	invS00, invS01, invS10, invS11 := 1.0, 0.0, 0.0, 1.0
	if det >= minDeterminant {
		invS00 = s11 / det
		invS01 = -s01 / det
		invS10 = -s10 / det
		invS11 = s00 / det
	}

	// Mahalanobis gate. Reject wild detections rather than blending them.
	dSq := yX*(invS00*yX+invS01*yY) + yY*(invS10*yX+invS11*yY)
	if dSq > e.cfg.GateSigma*e.cfg.GateSigma {
		e.confidence *= e.cfg.ConfidenceDecayRate
		e.appendSample()
		return false
	}

	// Kalman gain K = P*H^T*S^-1 (4x2).
	var k [8]float64
	for i := 0; i < 4; i++ {
		k[i*2+0] = e.p[i*4+0]*invS00 + e.p[i*4+1]*invS10
		k[i*2+1] = e.p[i*4+0]*invS01 + e.p[i*4+1]*invS11
	}

	e.x += k[0*2+0]*yX + k[0*2+1]*yY
	e.y += k[1*2+0]*yX + k[1*2+1]*yY
	e.vx += k[2*2+0]*yX + k[2*2+1]*yY
	e.vy += k[3*2+0]*yX + k[3*2+1]*yY

	// P' = (I - K*H)*P with H selecting the position rows, so
	// (K*H)[i,0] = K[i,0], (K*H)[i,1] = K[i,1], zero elsewhere.
	var iMinusKH [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v := 0.0
			if i == j {
				v = 1
			}
			switch j {
			case 0:
				v -= k[i*2+0]
			case 1:
				v -= k[i*2+1]
			}
			iMinusKH[i*4+j] = v
		}
	}
	var newP [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for m := 0; m < 4; m++ {
				sum += iMinusKH[i*4+m] * e.p[m*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	e.p = newP

	if !e.isFinite() {
		e.numericalReset()
		return false
	}
	e.clamp()

	e.confidence = math.Min(1, e.confidence+e.cfg.ConfidenceBoost)
	e.appendSample()
	return true
}

// seed initializes the filter at the first measurement.
func (e *Estimator) seed(z rally.Point, now float64) {
	e.initialized = true
	e.x, e.y = z.X, z.Y
	e.vx, e.vy = 0, 0
	e.p = initialCovariance
	e.age = 1
	e.lastTime = now
	e.confidence = e.cfg.ConfidenceBoost
	e.appendSample()
}

// History returns the most recent n trajectory samples in chronological
// order. n <= 0 or n beyond the retained window returns the full window.
// The returned slice is a copy.
func (e *Estimator) History(n int) []rally.TrajectorySample {
	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	out := make([]rally.TrajectorySample, n)
	copy(out, e.history[len(e.history)-n:])
	return out
}

// HistoryLen returns the number of retained trajectory samples.
func (e *Estimator) HistoryLen() int { return len(e.history) }

// PredictedTrajectory re-integrates k future steps of the projectile model
// at the default time step, with no further noise. Look-ahead only; nothing
// downstream decides on it.
func (e *Estimator) PredictedTrajectory(k int) []rally.TrajectorySample {
	if !e.initialized || k <= 0 {
		return nil
	}
	dt := e.cfg.DefaultTimeStep
	x, y, vx, vy := e.x, e.y, e.vx, e.vy
	ts := e.lastTime
	out := make([]rally.TrajectorySample, 0, k)
	for i := 0; i < k; i++ {
		x += vx * dt
		y += vy*dt + 0.5*e.cfg.Gravity*dt*dt
		vy += e.cfg.Gravity * dt
		ts += dt
		out = append(out, rally.TrajectorySample{
			Position: rally.Point{X: x, Y: y},
			Velocity: rally.Point{X: vx, Y: vy},
			Time:     ts,
		})
	}
	return out
}

// SignificantTrajectoryChange reports whether the latest velocity magnitude
// departs from the recent average by more than the configured threshold.
// Flags ball contacts (hits, bounces) for the rally machine's contact count.
func (e *Estimator) SignificantTrajectoryChange() bool {
	const lookback = 4
	if len(e.history) < lookback {
		return false
	}
	recent := e.history[len(e.history)-lookback:]
	var mean float64
	for _, s := range recent[:lookback-1] {
		mean += s.Speed()
	}
	mean /= lookback - 1
	latest := recent[lookback-1].Speed()
	return math.Abs(latest-mean) >= e.cfg.VelocityChangeThreshold
}

func (e *Estimator) appendSample() {
	s := rally.TrajectorySample{
		Position: rally.Point{X: e.x, Y: e.y},
		Velocity: rally.Point{X: e.vx, Y: e.vy},
		Time:     e.lastTime,
	}
	if len(e.history) == cap(e.history) && cap(e.history) > 0 {
		copy(e.history, e.history[1:])
		e.history[len(e.history)-1] = s
		return
	}
	e.history = append(e.history, s)
}

// clamp bounds position to the unit square and velocity magnitude to
// MaxSpeed, preventing divergence under repeated missed detections.
func (e *Estimator) clamp() {
	e.x = math.Min(1, math.Max(0, e.x))
	e.y = math.Min(1, math.Max(0, e.y))

	speed := math.Hypot(e.vx, e.vy)
	if speed > e.cfg.MaxSpeed {
		scale := e.cfg.MaxSpeed / speed
		e.vx *= scale
		e.vy *= scale
	}
}

func (e *Estimator) isFinite() bool {
	for _, v := range []float64{e.x, e.y, e.vx, e.vy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, v := range e.p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// numericalReset drops the filter after a NaN/Inf guard fired. History is
// kept; the ball is re-acquired by the next in-gate detection.
func (e *Estimator) numericalReset() {
	e.initialized = false
	e.x, e.y, e.vx, e.vy = 0, 0, 0, 0
	e.p = [16]float64{}
	e.confidence = 0
	if e.OnNumericalReset != nil {
		e.OnNumericalReset()
	}
}
