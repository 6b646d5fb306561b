// Package gate implements the physics gate: a time-windowed quadratic fit
// over the estimator's trajectory history, scored for ballistic plausibility.
// Its output feeds the movement classifier and the quality scorer; its
// validity bit is the main rally evidence signal.
package gate

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/rally"
)

// Result is one validation pass over the current trajectory window.
type Result struct {
	Valid  bool
	Reason string // set when invalid, for telemetry only

	Score rally.PhysicsScore
	Tier  rally.FitTier

	// Fit details. Curvature is the quadratic coefficient of y(t); the
	// fitted vertical acceleration is twice that.
	Curvature   float64
	ResidualRMS float64
	MeanAccel   float64 // mean finite-difference acceleration magnitude
	Samples     int
}

// Validator windows and scores trajectory samples. Stateless apart from
// config; one instance per pipeline.
type Validator struct {
	cfg config.Config
}

func NewValidator(cfg config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate windows history to the configured fit duration and runs the full
// physics check. history must be in chronological order (the estimator ring
// guarantees this).
func (v *Validator) Validate(history []rally.TrajectorySample) Result {
	window := v.window(history)
	if len(window) < v.cfg.MinPointsForFit {
		return Result{Reason: "insufficient samples in fit window", Samples: len(window)}
	}

	fit, ok := fitQuadratic(window)
	if !ok {
		return Result{Reason: "degenerate quadratic fit", Samples: len(window)}
	}

	accels := finiteDifferenceAccels(window)
	res := Result{
		Samples:     len(window),
		Curvature:   fit.a,
		ResidualRMS: fit.residualRMS,
		MeanAccel:   stat.Mean(accels, nil),
		Score: rally.PhysicsScore{
			RSquared:            fit.rSquared,
			VelocityConsistency: v.velocityConsistency(window),
			AccelerationPattern: v.accelerationPattern(fit.a),
			Smoothness:          v.smoothness(accels),
			VerticalMotion:      v.verticalMotion(window),
		},
	}
	res.Tier = v.tier(res.Score.ClampedRSquared())

	latest := window[len(window)-1]
	switch {
	case fit.rSquared < v.cfg.MinRSquared:
		res.Reason = "fit below minimum R-squared"
	case v.maxJump(window) > v.cfg.MaxJumpPerFrame:
		res.Reason = "per-frame jump exceeds maximum"
	case v.roiDeviation(window, fit) > v.cfg.ROIRadius:
		res.Reason = "latest sample outside predicted-path ROI"
	case latest.Speed() < v.cfg.MinActiveVelocity:
		res.Reason = "speed below active minimum"
	case v.cfg.GravityBandWanted && !v.inGravityBand(fit.a):
		res.Reason = "curvature outside gravity band"
	default:
		res.Valid = true
	}
	return res
}

// window returns the suffix of history spanning at most FitWindowSeconds.
func (v *Validator) window(history []rally.TrajectorySample) []rally.TrajectorySample {
	if len(history) == 0 {
		return nil
	}
	cutoff := history[len(history)-1].Time - v.cfg.FitWindowSeconds
	lo := len(history)
	for lo > 0 && history[lo-1].Time >= cutoff {
		lo--
	}
	return history[lo:]
}

type quadFit struct {
	a, b, c     float64 // y = a*t^2 + b*t + c, t relative to window start
	rSquared    float64
	residualRMS float64
	t0          float64
}

// fitQuadratic least-squares fits vertical position against time using a
// Vandermonde design matrix and a QR solve. Times are shifted to the window
// start for conditioning. ok is false when the solve fails (collinear or
// duplicate timestamps).
func fitQuadratic(window []rally.TrajectorySample) (quadFit, bool) {
	n := len(window)
	t0 := window[0].Time

	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, s := range window {
		t := s.Time - t0
		a.Set(i, 0, t*t)
		a.Set(i, 1, t)
		a.Set(i, 2, 1)
		b.SetVec(i, s.Position.Y)
	}

	var qr mat.QR
	qr.Factorize(a)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, b); err != nil {
		return quadFit{}, false
	}
	fit := quadFit{a: coef.AtVec(0), b: coef.AtVec(1), c: coef.AtVec(2), t0: t0}
	if math.IsNaN(fit.a) || math.IsInf(fit.a, 0) {
		return quadFit{}, false
	}

	var ssRes, ssTot, meanY float64
	for _, s := range window {
		meanY += s.Position.Y
	}
	meanY /= float64(n)
	for _, s := range window {
		t := s.Time - t0
		pred := fit.a*t*t + fit.b*t + fit.c
		ssRes += (s.Position.Y - pred) * (s.Position.Y - pred)
		ssTot += (s.Position.Y - meanY) * (s.Position.Y - meanY)
	}
	if ssTot > 0 {
		fit.rSquared = 1 - ssRes/ssTot
	} else {
		// constant height carries no parabolic information
		fit.rSquared = 0
	}
	fit.residualRMS = math.Sqrt(ssRes / float64(n))
	return fit, true
}

// eval returns the fitted vertical position at absolute time t.
func (f quadFit) eval(t float64) float64 {
	dt := t - f.t0
	return f.a*dt*dt + f.b*dt + f.c
}

// finiteDifferenceAccels returns central-difference acceleration magnitudes
// over the window.
func finiteDifferenceAccels(window []rally.TrajectorySample) []float64 {
	accels := make([]float64, 0, len(window))
	for i := 1; i < len(window)-1; i++ {
		dt1 := window[i].Time - window[i-1].Time
		dt2 := window[i+1].Time - window[i].Time
		if dt1 <= 0 || dt2 <= 0 {
			continue
		}
		v1 := window[i].Position.Sub(window[i-1].Position)
		v2 := window[i+1].Position.Sub(window[i].Position)
		ax := (v2.X/dt2 - v1.X/dt1) / ((dt1 + dt2) / 2)
		ay := (v2.Y/dt2 - v1.Y/dt1) / ((dt1 + dt2) / 2)
		accels = append(accels, math.Hypot(ax, ay))
	}
	return accels
}

// velocityConsistency is the fraction of inter-sample velocities under the
// per-axis caps.
func (v *Validator) velocityConsistency(window []rally.TrajectorySample) float64 {
	var valid, total int
	for i := 1; i < len(window); i++ {
		dt := window[i].Time - window[i-1].Time
		if dt <= 0 {
			continue
		}
		d := window[i].Position.Sub(window[i-1].Position)
		total++
		if math.Abs(d.X/dt) <= v.cfg.MaxVelocityX && math.Abs(d.Y/dt) <= v.cfg.MaxVelocityY {
			valid++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(valid) / float64(total)
}

// accelerationPattern scores the fitted curvature against free flight:
// direction (gravity pulls down, +y, so the parabola opens downward on
// screen with positive curvature) and magnitude plausibility against the
// gravity band, each weighted half.
func (v *Validator) accelerationPattern(curvature float64) float64 {
	direction := 0.0
	if curvature > 0 {
		direction = 1.0
	}

	vertAccel := math.Abs(2 * curvature)
	var magnitude float64
	switch {
	case vertAccel >= v.cfg.GravityBandLow && vertAccel <= v.cfg.GravityBandHigh:
		magnitude = 1.0
	case vertAccel < v.cfg.GravityBandLow:
		magnitude = vertAccel / v.cfg.GravityBandLow
	default:
		magnitude = v.cfg.GravityBandHigh / vertAccel
	}
	return (direction + clamp01(magnitude)) / 2
}

// smoothness maps acceleration variance inversely into [0, 1].
func (v *Validator) smoothness(accels []float64) float64 {
	if len(accels) < 2 {
		return 1
	}
	variance := stat.Variance(accels, nil)
	return clamp01(1 - variance/v.cfg.MaxAccelVariance)
}

// verticalMotion normalizes the window's vertical travel range.
func (v *Validator) verticalMotion(window []rally.TrajectorySample) float64 {
	minY, maxY := window[0].Position.Y, window[0].Position.Y
	for _, s := range window[1:] {
		minY = math.Min(minY, s.Position.Y)
		maxY = math.Max(maxY, s.Position.Y)
	}
	return clamp01((maxY - minY) / v.cfg.VerticalMotionRef)
}

func (v *Validator) maxJump(window []rally.TrajectorySample) float64 {
	var maxJump float64
	for i := 1; i < len(window); i++ {
		maxJump = math.Max(maxJump, window[i].Position.Distance(window[i-1].Position))
	}
	return maxJump
}

// roiDeviation is the latest sample's vertical distance from the fitted
// path, the region-of-interest consistency check.
func (v *Validator) roiDeviation(window []rally.TrajectorySample, fit quadFit) float64 {
	latest := window[len(window)-1]
	return math.Abs(latest.Position.Y - fit.eval(latest.Time))
}

func (v *Validator) inGravityBand(curvature float64) bool {
	vertAccel := 2 * curvature
	return vertAccel >= v.cfg.GravityBandLow && vertAccel <= v.cfg.GravityBandHigh
}

func (v *Validator) tier(clampedR2 float64) rally.FitTier {
	switch {
	case clampedR2 >= v.cfg.RSquaredExcellent:
		return rally.FitExcellent
	case clampedR2 >= v.cfg.RSquaredGood:
		return rally.FitGood
	case clampedR2 >= v.cfg.MinRSquared:
		return rally.FitAcceptable
	default:
		return rally.FitPoor
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
